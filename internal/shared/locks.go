package shared

import (
	"fmt"
	"time"
)

// SampleAllowanceLockKey names the critical section guarding a rep's monthly
// sample allowance.
func SampleAllowanceLockKey(tenantID, salesRepID int64, month time.Time) string {
	return fmt.Sprintf("samples:%d:%d:%s:lock", tenantID, salesRepID, month.UTC().Format("2006-01"))
}

// SweepLockKey names the critical section guarding a tenant sweep.
func SweepLockKey(tenantID int64) string {
	return fmt.Sprintf("intel:sweep:%d:lock", tenantID)
}

package intelligence

import (
	"context"
	"time"
)

// Reader is the order history read contract. Implementations must scope every
// query to tenantID and report failures as *DataSourceError.
type Reader interface {
	ListFulfilledOrders(ctx context.Context, tenantID, customerID int64, since time.Time) ([]Order, error)
	ListMonthlyRevenue(ctx context.Context, tenantID, customerID int64, since time.Time) ([]MonthlyRevenue, error)
	ListSampleTransfers(ctx context.Context, tenantID, salesRepID int64, from, to time.Time) ([]SampleTransfer, error)
	ListActiveProducts(ctx context.Context, tenantID int64) ([]Product, error)
	ListOrderLinesForProduct(ctx context.Context, tenantID, productID int64, since time.Time) ([]ProductSale, error)
}

// Directory lists tenant-level reference data used by sweeps and rankings.
type Directory interface {
	ListTenants(ctx context.Context) ([]int64, error)
	ListCustomers(ctx context.Context, tenantID int64) ([]Customer, error)
	ListProducts(ctx context.Context, tenantID int64) ([]Product, error)
	CountActiveCustomers(ctx context.Context, tenantID int64, since time.Time) (int, error)
	ListCustomerActivity(ctx context.Context, tenantID int64) ([]CustomerActivity, error)
}

// SettingsSource returns a tenant's raw JSON overrides; nil means defaults.
type SettingsSource interface {
	LoadTenantSettings(ctx context.Context, tenantID int64) ([]byte, error)
}

// SampleTx is the transactional surface used when recording a sample transfer.
// CreateSampleTransfer must insert the transfer and its outbound inventory
// movement in the same transaction.
type SampleTx interface {
	LockRepMonth(ctx context.Context, tenantID, salesRepID int64, month time.Time) error
	SumRepPulls(ctx context.Context, tenantID, salesRepID int64, from, to time.Time) (int64, error)
	CreateSampleTransfer(ctx context.Context, transfer SampleTransfer) (SampleTransfer, error)
}

// SampleWriter opens sample transactions.
type SampleWriter interface {
	WithSampleTx(ctx context.Context, fn func(context.Context, SampleTx) error) error
}

// SnapshotStore appends and lists revenue health snapshots. There is no update path.
type SnapshotStore interface {
	PersistHealthSnapshot(ctx context.Context, tenantID int64, result HealthResult, capturedAt time.Time) (HealthSnapshot, error)
	ListHealthSnapshots(ctx context.Context, tenantID, customerID int64, limit int) ([]HealthSnapshot, error)
}

// Store is the full persistence surface the engine depends on.
type Store interface {
	Reader
	Directory
	SettingsSource
	SampleWriter
	SnapshotStore
}

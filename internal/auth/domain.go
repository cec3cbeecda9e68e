package auth

import "time"

// APIKey is a tenant-scoped credential. Only the bcrypt hash of the secret is stored.
type APIKey struct {
	Prefix     string
	SecretHash string
	TenantID   int64
	UserID     int64
	Roles      []string
	IsActive   bool
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the key may authenticate at now.
func (k *APIKey) Usable(now time.Time) bool {
	if k == nil || !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

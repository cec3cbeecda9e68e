package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

// Service wraps API key authentication rules.
type Service struct {
	repo  Repository
	clock func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Authenticate resolves a presented "<prefix>.<secret>" key into a caller.
func (s *Service) Authenticate(ctx context.Context, presented string) (*shared.Caller, error) {
	prefix, secret, ok := strings.Cut(strings.TrimSpace(presented), ".")
	if !ok || prefix == "" || secret == "" {
		return nil, shared.ErrInvalidCredentials
	}
	key, err := s.repo.FindByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !key.Usable(s.clock()) {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	_ = s.repo.TouchLastUsed(ctx, prefix, s.clock().UTC())
	return &shared.Caller{
		TenantID: key.TenantID,
		UserID:   key.UserID,
		Roles:    key.Roles,
		KeyID:    key.Prefix,
	}, nil
}

// Issue creates a new key and returns the plaintext once.
func (s *Service) Issue(ctx context.Context, tenantID, userID int64, roles []string) (string, error) {
	if tenantID <= 0 {
		return "", errors.New("auth: tenant required")
	}
	prefix, err := randomHex(4)
	if err != nil {
		return "", err
	}
	secret, err := randomHex(16)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash key: %w", err)
	}
	key := APIKey{
		Prefix:     prefix,
		SecretHash: string(hash),
		TenantID:   tenantID,
		UserID:     userID,
		Roles:      roles,
		IsActive:   true,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return "", err
	}
	return prefix + "." + secret, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

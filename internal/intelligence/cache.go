package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries "<tenant>:<version>" after a tenant's views are invalidated.
const InvalidationChannel = "intel.invalidate"

const (
	viewOpportunities = "opps"
	viewAlerts        = "alerts"
)

// Cache keeps computed tenant views in Redis. Each tenant has its own version
// counter embedded in every key, so invalidating one tenant leaves the others
// warm; superseded entries expire with the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds a cache over client. Entries live for ttl.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(tenantID int64) string {
	return "intel:version:" + formatInt(tenantID)
}

// Version returns the tenant's current view version, starting at 1.
func (c *Cache) Version(ctx context.Context, tenantID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(tenantID)
	if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
		return 0, err
	}
	return c.client.Get(ctx, key).Int64()
}

func (c *Cache) viewKey(ctx context.Context, tenantID int64, view string, parts ...string) (string, error) {
	ver, err := c.Version(ctx, tenantID)
	if err != nil {
		return "", err
	}
	head := []string{"intel", view, formatInt(tenantID), "v" + formatInt(ver)}
	return strings.Join(append(head, parts...), ":"), nil
}

// Invalidate bumps the version of every listed tenant in one transaction and
// announces each new version on InvalidationChannel.
func (c *Cache) Invalidate(ctx context.Context, tenantIDs ...int64) error {
	if c == nil || c.client == nil || len(tenantIDs) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	bumps := make([]*redis.IntCmd, len(tenantIDs))
	for i, id := range tenantIDs {
		bumps[i] = pipe.Incr(ctx, versionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: bump versions: %w", err)
	}
	var errs []error
	for i, id := range tenantIDs {
		msg := formatInt(id) + ":" + formatInt(bumps[i].Val())
		if err := c.client.Publish(ctx, InvalidationChannel, msg).Err(); err != nil {
			errs = append(errs, fmt.Errorf("cache: announce tenant %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// ListenForInvalidation calls onInvalidate for every tenant invalidated by
// another process until ctx is done. Malformed messages are ignored.
func (c *Cache) ListenForInvalidation(ctx context.Context, onInvalidate func(tenantID, version int64)) error {
	if c == nil || c.client == nil || onInvalidate == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, InvalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if tenantID, version, ok := parseInvalidation(msg.Payload); ok {
					onInvalidate(tenantID, version)
				}
			}
		}
	}()
	return nil
}

func parseInvalidation(payload string) (int64, int64, bool) {
	rawTenant, rawVersion, ok := strings.Cut(payload, ":")
	if !ok {
		return 0, 0, false
	}
	tenantID, err := strconv.ParseInt(rawTenant, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return tenantID, version, true
}

// cached returns the tenant view stored under view and parts, computing and
// storing it on a miss. Redis failures degrade to computing uncached.
func cached[T any](ctx context.Context, c *Cache, tenantID int64, view string, parts []string, load func(context.Context) (T, error)) (T, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key, err := c.viewKey(ctx, tenantID, view, parts...)
	if err != nil {
		return load(ctx)
	}
	var out T
	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	}
	value, err := load(ctx)
	if err != nil {
		return out, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	if err := json.Unmarshal(raw, &out); err != nil {
		return value, nil
	}
	return out, nil
}

func opportunityKeyParts(customerID int64, q OpportunityQuery, lookbackDays int, asOf time.Time) []string {
	return []string{
		formatInt(customerID), string(q.Metric), strconv.Itoa(q.Limit),
		strconv.Itoa(q.MinimumCustomerThreshold), strconv.FormatBool(q.IncludeInactiveProducts),
		"lb" + strconv.Itoa(lookbackDays), asOf.Format("2006-01-02"),
	}
}

func alertKeyParts(asOf time.Time) []string {
	return []string{asOf.Format("2006-01-02")}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

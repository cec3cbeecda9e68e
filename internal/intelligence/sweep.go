package intelligence

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepReport summarises one tenant sweep.
type SweepReport struct {
	TenantID  int64     `json:"tenant_id"`
	Customers int       `json:"customers"`
	Evaluated int       `json:"evaluated"`
	Skipped   int       `json:"skipped"`
	Snapshots int       `json:"snapshots"`
	Alerts    []Alert   `json:"alerts"`
	RanAt     time.Time `json:"ran_at"`
}

// Alerts returns the tenant's prioritized action list, cached for the day.
func (e *Engine) Alerts(ctx context.Context, tenantID int64) ([]Alert, error) {
	if e.store == nil {
		return nil, ErrReaderNotConfigured
	}
	now := e.now()
	load := func(ctx context.Context) ([]Alert, error) {
		report, err := e.sweep(ctx, tenantID, now, false)
		if err != nil {
			return nil, err
		}
		return report.Alerts, nil
	}
	return cached(ctx, e.cache, tenantID, viewAlerts, alertKeyParts(now), load)
}

// SweepTenant evaluates every customer of a tenant, appends a health snapshot
// for each evaluated customer and returns the prioritized alerts.
func (e *Engine) SweepTenant(ctx context.Context, tenantID int64) (SweepReport, error) {
	if e.store == nil {
		return SweepReport{}, ErrReaderNotConfigured
	}
	return e.sweep(ctx, tenantID, e.now(), true)
}

func (e *Engine) sweep(ctx context.Context, tenantID int64, now time.Time, persist bool) (SweepReport, error) {
	settings, err := e.Settings(ctx, tenantID)
	if err != nil {
		return SweepReport{}, err
	}
	customers, err := e.store.ListCustomers(ctx, tenantID)
	if err != nil {
		return SweepReport{}, err
	}
	activity, err := e.store.ListCustomerActivity(ctx, tenantID)
	if err != nil {
		return SweepReport{}, err
	}
	lastActivity := make(map[int64]time.Time, len(activity))
	for _, a := range activity {
		if a.LastActivityAt != nil {
			lastActivity[a.CustomerID] = *a.LastActivityAt
		}
	}

	signals := make([]AccountSignals, len(customers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, c := range customers {
		g.Go(func() error {
			sig := AccountSignals{Customer: c}
			if at, ok := lastActivity[c.ID]; ok {
				days := wholeDays(at, now)
				sig.DaysSinceLastActivity = &days
			}
			pace, err := e.pace(gctx, tenantID, c.ID, settings.Pace, now)
			if err != nil {
				sig.Err = err
				signals[i] = sig
				return nil
			}
			health, err := e.health(gctx, tenantID, c.ID, settings.Health, now)
			if err != nil {
				sig.Err = err
				signals[i] = sig
				return nil
			}
			sig.Pace = &pace
			sig.Health = &health
			signals[i] = sig
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{TenantID: tenantID, Customers: len(customers), RanAt: now}
	for _, sig := range signals {
		if sig.Err != nil {
			report.Skipped++
			continue
		}
		report.Evaluated++
		if !persist {
			continue
		}
		if _, err := e.store.PersistHealthSnapshot(ctx, tenantID, *sig.Health, now); err != nil {
			e.logger.Warn("persist health snapshot",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("customer_id", sig.Customer.ID),
				slog.Any("error", err))
			continue
		}
		report.Snapshots++
	}
	report.Alerts = Prioritize(signals, e.logger.With(slog.Int64("tenant_id", tenantID)))
	return report, nil
}

package e2e

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
)

// flowStore is a tenant-scoped in-memory intelligence.Store.
type flowStore struct {
	mu        sync.Mutex
	customers []intelligence.Customer
	products  []intelligence.Product
	orders    []intelligence.Order
	transfers []intelligence.SampleTransfer
	snapshots []intelligence.HealthSnapshot
}

func (s *flowStore) addOrder(tenantID, customerID int64, at time.Time, productID, qty, total int64) {
	s.orders = append(s.orders, intelligence.Order{
		ID:          int64(len(s.orders) + 1),
		TenantID:    tenantID,
		CustomerID:  customerID,
		Status:      intelligence.OrderStatusFulfilled,
		FulfilledAt: &at,
		Lines: []intelligence.OrderLine{{
			ProductID: productID, Quantity: qty, LineTotal: decimal.NewFromInt(total),
		}},
	})
}

func (s *flowStore) fulfilled(tenantID int64, since time.Time) []intelligence.Order {
	var out []intelligence.Order
	for _, o := range s.orders {
		if o.TenantID == tenantID && o.IsFulfilled() && !o.FulfilledAt.Before(since) {
			out = append(out, o)
		}
	}
	return out
}

func (s *flowStore) ListFulfilledOrders(ctx context.Context, tenantID, customerID int64, since time.Time) ([]intelligence.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []intelligence.Order
	for _, o := range s.fulfilled(tenantID, since) {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *flowStore) ListMonthlyRevenue(ctx context.Context, tenantID, customerID int64, since time.Time) ([]intelligence.MonthlyRevenue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMonth := make(map[string]int)
	var out []intelligence.MonthlyRevenue
	for _, o := range s.fulfilled(tenantID, since) {
		if o.CustomerID != customerID {
			continue
		}
		key := intelligence.FormatMonth(*o.FulfilledAt)
		idx, ok := byMonth[key]
		if !ok {
			out = append(out, intelligence.MonthlyRevenue{Year: o.FulfilledAt.Year(), Month: o.FulfilledAt.Month()})
			idx = len(out) - 1
			byMonth[key] = idx
		}
		for _, l := range o.Lines {
			out[idx].Revenue = out[idx].Revenue.Add(l.LineTotal)
		}
	}
	return out, nil
}

func (s *flowStore) ListSampleTransfers(ctx context.Context, tenantID, salesRepID int64, from, to time.Time) ([]intelligence.SampleTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfersFor(tenantID, salesRepID, from, to), nil
}

func (s *flowStore) transfersFor(tenantID, salesRepID int64, from, to time.Time) []intelligence.SampleTransfer {
	var out []intelligence.SampleTransfer
	for _, t := range s.transfers {
		if t.TenantID == tenantID && t.SalesRepID == salesRepID && !t.TransferDate.Before(from) && t.TransferDate.Before(to) {
			out = append(out, t)
		}
	}
	return out
}

func (s *flowStore) ListActiveProducts(ctx context.Context, tenantID int64) ([]intelligence.Product, error) {
	var out []intelligence.Product
	for _, p := range s.products {
		if p.TenantID == tenantID && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *flowStore) ListOrderLinesForProduct(ctx context.Context, tenantID, productID int64, since time.Time) ([]intelligence.ProductSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []intelligence.ProductSale
	for _, o := range s.fulfilled(tenantID, since) {
		for _, l := range o.Lines {
			if l.ProductID == productID {
				out = append(out, intelligence.ProductSale{OrderID: o.ID, ProductID: productID, CustomerID: o.CustomerID, Quantity: l.Quantity, LineTotal: l.LineTotal})
			}
		}
	}
	return out, nil
}

func (s *flowStore) ListTenants(ctx context.Context) ([]int64, error) {
	return []int64{1}, nil
}

func (s *flowStore) ListCustomers(ctx context.Context, tenantID int64) ([]intelligence.Customer, error) {
	var out []intelligence.Customer
	for _, c := range s.customers {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *flowStore) ListProducts(ctx context.Context, tenantID int64) ([]intelligence.Product, error) {
	var out []intelligence.Product
	for _, p := range s.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *flowStore) CountActiveCustomers(ctx context.Context, tenantID int64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]struct{})
	for _, o := range s.fulfilled(tenantID, since) {
		seen[o.CustomerID] = struct{}{}
	}
	return len(seen), nil
}

func (s *flowStore) ListCustomerActivity(ctx context.Context, tenantID int64) ([]intelligence.CustomerActivity, error) {
	return nil, nil
}

func (s *flowStore) LoadTenantSettings(ctx context.Context, tenantID int64) ([]byte, error) {
	return nil, nil
}

func (s *flowStore) WithSampleTx(ctx context.Context, fn func(context.Context, intelligence.SampleTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &flowTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.transfers = append(s.transfers, tx.pending...)
	return nil
}

// flowTx runs with the store mutex held, which serializes sample writes the
// way the advisory lock does in PostgreSQL.
type flowTx struct {
	store   *flowStore
	pending []intelligence.SampleTransfer
}

func (tx *flowTx) LockRepMonth(ctx context.Context, tenantID, salesRepID int64, month time.Time) error {
	return nil
}

func (tx *flowTx) SumRepPulls(ctx context.Context, tenantID, salesRepID int64, from, to time.Time) (int64, error) {
	var total int64
	for _, t := range tx.store.transfersFor(tenantID, salesRepID, from, to) {
		total += t.Quantity
	}
	return total, nil
}

func (tx *flowTx) CreateSampleTransfer(ctx context.Context, transfer intelligence.SampleTransfer) (intelligence.SampleTransfer, error) {
	tx.pending = append(tx.pending, transfer)
	return transfer, nil
}

func (s *flowStore) PersistHealthSnapshot(ctx context.Context, tenantID int64, result intelligence.HealthResult, capturedAt time.Time) (intelligence.HealthSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := intelligence.HealthSnapshot{ID: int64(len(s.snapshots) + 1), TenantID: tenantID, Result: result, CapturedAt: capturedAt}
	s.snapshots = append(s.snapshots, snap)
	return snap, nil
}

func (s *flowStore) ListHealthSnapshots(ctx context.Context, tenantID, customerID int64, limit int) ([]intelligence.HealthSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []intelligence.HealthSnapshot
	for i := len(s.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		snap := s.snapshots[i]
		if snap.TenantID == tenantID && snap.Result.CustomerID == customerID {
			out = append(out, snap)
		}
	}
	return out, nil
}

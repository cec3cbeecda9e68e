package intelligencedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	"github.com/odyssey-erp/commerce-intel/internal/inventory"
	"github.com/odyssey-erp/commerce-intel/internal/platform/db"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

// Repository reads order history and writes sample transfers and health
// snapshots in PostgreSQL. Every query is scoped by tenant_id.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *inventory.Ledger
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, ledger *inventory.Ledger) *Repository {
	if ledger == nil {
		ledger = inventory.NewLedger(false)
	}
	return &Repository{pool: pool, ledger: ledger}
}

var _ intelligence.Store = (*Repository)(nil)

const listFulfilledOrdersSQL = `
SELECT o.id, o.customer_id, o.tenant_id, o.status, o.fulfilled_at,
       l.product_id, l.quantity, l.unit_price, l.line_total
FROM orders o
LEFT JOIN order_lines l ON l.order_id = o.id
WHERE o.tenant_id = $1 AND o.customer_id = $2
  AND o.status = 'fulfilled' AND o.fulfilled_at >= $3
ORDER BY o.fulfilled_at, o.id, l.product_id`

// ListFulfilledOrders returns the customer's fulfilled orders since the cutoff with their lines.
func (r *Repository) ListFulfilledOrders(ctx context.Context, tenantID, customerID int64, since time.Time) ([]intelligence.Order, error) {
	rows, err := r.pool.Query(ctx, listFulfilledOrdersSQL, tenantID, customerID, since.UTC())
	if err != nil {
		return nil, intelligence.WrapDataSource("list fulfilled orders", err)
	}
	defer rows.Close()

	var orders []intelligence.Order
	index := make(map[int64]int)
	for rows.Next() {
		var (
			o           intelligence.Order
			status      string
			fulfilledAt pgtype.Timestamptz
			productID   pgtype.Int8
			quantity    pgtype.Int8
			unitPrice   decimal.NullDecimal
			lineTotal   decimal.NullDecimal
		)
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.TenantID, &status, &fulfilledAt,
			&productID, &quantity, &unitPrice, &lineTotal); err != nil {
			return nil, intelligence.WrapDataSource("scan fulfilled orders", err)
		}
		pos, ok := index[o.ID]
		if !ok {
			o.Status = intelligence.OrderStatus(status)
			if fulfilledAt.Valid {
				at := fulfilledAt.Time.UTC()
				o.FulfilledAt = &at
			}
			orders = append(orders, o)
			pos = len(orders) - 1
			index[o.ID] = pos
		}
		if productID.Valid {
			orders[pos].Lines = append(orders[pos].Lines, intelligence.OrderLine{
				OrderID:   o.ID,
				ProductID: productID.Int64,
				Quantity:  quantity.Int64,
				UnitPrice: unitPrice.Decimal,
				LineTotal: lineTotal.Decimal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, intelligence.WrapDataSource("list fulfilled orders", err)
	}
	return orders, nil
}

const listMonthlyRevenueSQL = `
SELECT EXTRACT(YEAR FROM o.fulfilled_at AT TIME ZONE 'UTC')::int AS year,
       EXTRACT(MONTH FROM o.fulfilled_at AT TIME ZONE 'UTC')::int AS month,
       COALESCE(SUM(l.line_total), 0) AS revenue
FROM orders o
JOIN order_lines l ON l.order_id = o.id
WHERE o.tenant_id = $1 AND o.customer_id = $2
  AND o.status = 'fulfilled' AND o.fulfilled_at >= $3
GROUP BY 1, 2
ORDER BY 1, 2`

// ListMonthlyRevenue sums fulfilled line totals per UTC calendar month.
func (r *Repository) ListMonthlyRevenue(ctx context.Context, tenantID, customerID int64, since time.Time) ([]intelligence.MonthlyRevenue, error) {
	rows, err := r.pool.Query(ctx, listMonthlyRevenueSQL, tenantID, customerID, since.UTC())
	if err != nil {
		return nil, intelligence.WrapDataSource("list monthly revenue", err)
	}
	defer rows.Close()

	var out []intelligence.MonthlyRevenue
	for rows.Next() {
		var (
			year, month int
			revenue     decimal.Decimal
		)
		if err := rows.Scan(&year, &month, &revenue); err != nil {
			return nil, intelligence.WrapDataSource("scan monthly revenue", err)
		}
		out = append(out, intelligence.MonthlyRevenue{Year: year, Month: time.Month(month), Revenue: revenue})
	}
	if err := rows.Err(); err != nil {
		return nil, intelligence.WrapDataSource("list monthly revenue", err)
	}
	return out, nil
}

const sampleTransferColumns = `id, tenant_id, sales_rep_id, customer_id, product_id, warehouse_id, quantity,
       transfer_date, follow_up_activity_id, approved_by_manager_id, note, created_by, created_at`

const listSampleTransfersSQL = `
SELECT ` + sampleTransferColumns + `
FROM sample_transfers
WHERE tenant_id = $1 AND sales_rep_id = $2 AND transfer_date >= $3 AND transfer_date < $4
ORDER BY transfer_date, id`

// ListSampleTransfers returns the rep's transfers in [from, to).
func (r *Repository) ListSampleTransfers(ctx context.Context, tenantID, salesRepID int64, from, to time.Time) ([]intelligence.SampleTransfer, error) {
	rows, err := r.pool.Query(ctx, listSampleTransfersSQL, tenantID, salesRepID, from.UTC(), to.UTC())
	if err != nil {
		return nil, intelligence.WrapDataSource("list sample transfers", err)
	}
	defer rows.Close()

	var out []intelligence.SampleTransfer
	for rows.Next() {
		t, err := scanSampleTransfer(rows)
		if err != nil {
			return nil, intelligence.WrapDataSource("scan sample transfers", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, intelligence.WrapDataSource("list sample transfers", err)
	}
	return out, nil
}

func scanSampleTransfer(row pgx.Row) (intelligence.SampleTransfer, error) {
	var (
		t          intelligence.SampleTransfer
		id         pgtype.UUID
		followUp   pgtype.Int8
		approvedBy pgtype.Int8
		note       pgtype.Text
		createdBy  pgtype.Int8
		transferAt pgtype.Timestamptz
		createdAt  pgtype.Timestamptz
	)
	err := row.Scan(&id, &t.TenantID, &t.SalesRepID, &t.CustomerID, &t.ProductID, &t.WarehouseID, &t.Quantity,
		&transferAt, &followUp, &approvedBy, &note, &createdBy, &createdAt)
	if err != nil {
		return intelligence.SampleTransfer{}, err
	}
	t.ID = uuid.UUID(id.Bytes)
	t.TransferDate = transferAt.Time.UTC()
	t.CreatedAt = createdAt.Time.UTC()
	t.Note = note.String
	t.CreatedBy = createdBy.Int64
	if followUp.Valid {
		v := followUp.Int64
		t.FollowUpActivityID = &v
	}
	if approvedBy.Valid {
		v := approvedBy.Int64
		t.ApprovedByManagerID = &v
	}
	return t, nil
}

const listProductsSQL = `
SELECT id, tenant_id, sku, name, is_active
FROM products
WHERE tenant_id = $1 AND ($2::boolean = FALSE OR is_active)
ORDER BY id`

// ListActiveProducts returns the tenant's active catalog.
func (r *Repository) ListActiveProducts(ctx context.Context, tenantID int64) ([]intelligence.Product, error) {
	return r.listProducts(ctx, tenantID, true)
}

// ListProducts returns the tenant's whole catalog.
func (r *Repository) ListProducts(ctx context.Context, tenantID int64) ([]intelligence.Product, error) {
	return r.listProducts(ctx, tenantID, false)
}

func (r *Repository) listProducts(ctx context.Context, tenantID int64, activeOnly bool) ([]intelligence.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, tenantID, activeOnly)
	if err != nil {
		return nil, intelligence.WrapDataSource("list products", err)
	}
	defer rows.Close()

	var out []intelligence.Product
	for rows.Next() {
		var p intelligence.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.IsActive); err != nil {
			return nil, intelligence.WrapDataSource("scan products", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, intelligence.WrapDataSource("list products", err)
	}
	return out, nil
}

const listOrderLinesForProductSQL = `
SELECT l.order_id, l.product_id, o.customer_id, l.quantity, l.line_total
FROM order_lines l
JOIN orders o ON o.id = l.order_id
WHERE o.tenant_id = $1 AND l.product_id = $2
  AND o.status = 'fulfilled' AND o.fulfilled_at >= $3
ORDER BY l.order_id`

// ListOrderLinesForProduct returns tenant-wide fulfilled sales of a product.
func (r *Repository) ListOrderLinesForProduct(ctx context.Context, tenantID, productID int64, since time.Time) ([]intelligence.ProductSale, error) {
	rows, err := r.pool.Query(ctx, listOrderLinesForProductSQL, tenantID, productID, since.UTC())
	if err != nil {
		return nil, intelligence.WrapDataSource("list product sales", err)
	}
	defer rows.Close()

	var out []intelligence.ProductSale
	for rows.Next() {
		var s intelligence.ProductSale
		if err := rows.Scan(&s.OrderID, &s.ProductID, &s.CustomerID, &s.Quantity, &s.LineTotal); err != nil {
			return nil, intelligence.WrapDataSource("scan product sales", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, intelligence.WrapDataSource("list product sales", err)
	}
	return out, nil
}

// ListTenants returns every active tenant id.
func (r *Repository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tenants WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, intelligence.WrapDataSource("list tenants", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, intelligence.WrapDataSource("list tenants", err)
	}
	return ids, nil
}

// ListCustomers returns the tenant's customers.
func (r *Repository) ListCustomers(ctx context.Context, tenantID int64) ([]intelligence.Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, display_name FROM customers WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, intelligence.WrapDataSource("list customers", err)
	}
	defer rows.Close()

	var out []intelligence.Customer
	for rows.Next() {
		var c intelligence.Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DisplayName); err != nil {
			return nil, intelligence.WrapDataSource("scan customers", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, intelligence.WrapDataSource("list customers", err)
	}
	return out, nil
}

// CountActiveCustomers counts distinct customers with a fulfilled order since the cutoff.
func (r *Repository) CountActiveCustomers(ctx context.Context, tenantID int64, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(DISTINCT customer_id)
FROM orders
WHERE tenant_id = $1 AND status = 'fulfilled' AND fulfilled_at >= $2`, tenantID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, intelligence.WrapDataSource("count active customers", err)
	}
	return count, nil
}

// ListCustomerActivity returns the last logged sales activity per customer.
func (r *Repository) ListCustomerActivity(ctx context.Context, tenantID int64) ([]intelligence.CustomerActivity, error) {
	rows, err := r.pool.Query(ctx, `
SELECT customer_id, MAX(occurred_at)
FROM sales_activities
WHERE tenant_id = $1
GROUP BY customer_id`, tenantID)
	if err != nil {
		return nil, intelligence.WrapDataSource("list customer activity", err)
	}
	defer rows.Close()

	var out []intelligence.CustomerActivity
	for rows.Next() {
		var (
			a  intelligence.CustomerActivity
			at pgtype.Timestamptz
		)
		if err := rows.Scan(&a.CustomerID, &at); err != nil {
			return nil, intelligence.WrapDataSource("scan customer activity", err)
		}
		if at.Valid {
			t := at.Time.UTC()
			a.LastActivityAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, intelligence.WrapDataSource("list customer activity", err)
	}
	return out, nil
}

// LoadTenantSettings returns the raw JSON overrides, or nil when the tenant has none.
func (r *Repository) LoadTenantSettings(ctx context.Context, tenantID int64) ([]byte, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT settings FROM tenant_settings WHERE tenant_id = $1`, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, intelligence.WrapDataSource("load tenant settings", err)
	}
	return raw, nil
}

// PersistHealthSnapshot appends an immutable snapshot row.
func (r *Repository) PersistHealthSnapshot(ctx context.Context, tenantID int64, result intelligence.HealthResult, capturedAt time.Time) (intelligence.HealthSnapshot, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return intelligence.HealthSnapshot{}, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `
INSERT INTO health_snapshots (tenant_id, customer_id, risk_level, percentage_change, result, captured_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, tenantID, result.CustomerID, string(result.RiskLevel), result.PercentageChange, payload, capturedAt.UTC()).Scan(&id)
	if err != nil {
		return intelligence.HealthSnapshot{}, intelligence.WrapDataSource("persist health snapshot", err)
	}
	return intelligence.HealthSnapshot{ID: id, TenantID: tenantID, Result: result, CapturedAt: capturedAt.UTC()}, nil
}

// ListHealthSnapshots returns the newest snapshots first. It reads inside a
// read-only transaction.
func (r *Repository) ListHealthSnapshots(ctx context.Context, tenantID, customerID int64, limit int) ([]intelligence.HealthSnapshot, error) {
	var out []intelligence.HealthSnapshot
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id, result, captured_at
FROM health_snapshots
WHERE tenant_id = $1 AND customer_id = $2
ORDER BY captured_at DESC, id DESC
LIMIT $3`, tenantID, customerID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				snap       intelligence.HealthSnapshot
				payload    []byte
				capturedAt pgtype.Timestamptz
			)
			if err := rows.Scan(&snap.ID, &payload, &capturedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if err := json.Unmarshal(payload, &snap.Result); err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			snap.TenantID = tenantID
			snap.CapturedAt = capturedAt.Time.UTC()
			out = append(out, snap)
		}
		return rows.Err()
	}, db.ReadOnly())
	if err != nil {
		return nil, intelligence.WrapDataSource("list health snapshots", err)
	}
	return out, nil
}

// WithSampleTx executes the callback inside a read-committed transaction.
// Each statement after LockRepMonth sees pulls committed by the previous
// holder of the lock.
func (r *Repository) WithSampleTx(ctx context.Context, fn func(context.Context, intelligence.SampleTx) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &sampleTx{tx: tx, ledger: r.ledger})
	}, db.WithIsolation(pgx.ReadCommitted))
	if err == nil {
		return nil
	}
	if errors.Is(err, intelligence.ErrAllowanceExceeded) ||
		errors.Is(err, inventory.ErrNegativeStock) ||
		errors.Is(err, inventory.ErrInvalidQuantity) {
		return err
	}
	return intelligence.WrapDataSource("sample tx", err)
}

type sampleTx struct {
	tx     pgx.Tx
	ledger *inventory.Ledger
}

// LockRepMonth serialises allowance checks for one rep and month until the
// transaction ends.
func (t *sampleTx) LockRepMonth(ctx context.Context, tenantID, salesRepID int64, month time.Time) error {
	key := shared.SampleAllowanceLockKey(tenantID, salesRepID, month)
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return intelligence.WrapDataSource("lock rep month", err)
	}
	return nil
}

func (t *sampleTx) SumRepPulls(ctx context.Context, tenantID, salesRepID int64, from, to time.Time) (int64, error) {
	var total int64
	err := t.tx.QueryRow(ctx, `
SELECT COALESCE(SUM(quantity), 0)::bigint
FROM sample_transfers
WHERE tenant_id = $1 AND sales_rep_id = $2 AND transfer_date >= $3 AND transfer_date < $4`,
		tenantID, salesRepID, from.UTC(), to.UTC()).Scan(&total)
	if err != nil {
		return 0, intelligence.WrapDataSource("sum rep pulls", err)
	}
	return total, nil
}

const insertSampleTransferSQL = `
INSERT INTO sample_transfers (id, tenant_id, sales_rep_id, customer_id, product_id, warehouse_id, quantity,
                              transfer_date, approved_by_manager_id, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + sampleTransferColumns

// CreateSampleTransfer inserts the transfer and posts its outbound stock movement.
func (t *sampleTx) CreateSampleTransfer(ctx context.Context, transfer intelligence.SampleTransfer) (intelligence.SampleTransfer, error) {
	row := t.tx.QueryRow(ctx, insertSampleTransferSQL,
		pgtype.UUID{Bytes: transfer.ID, Valid: true},
		transfer.TenantID,
		transfer.SalesRepID,
		transfer.CustomerID,
		transfer.ProductID,
		transfer.WarehouseID,
		transfer.Quantity,
		transfer.TransferDate.UTC(),
		transfer.ApprovedByManagerID,
		pgtype.Text{String: transfer.Note, Valid: transfer.Note != ""},
		pgtype.Int8{Int64: transfer.CreatedBy, Valid: transfer.CreatedBy != 0},
		transfer.CreatedAt.UTC(),
	)
	created, err := scanSampleTransfer(row)
	if err != nil {
		return intelligence.SampleTransfer{}, intelligence.WrapDataSource("insert sample transfer", err)
	}
	_, err = t.ledger.PostSampleOut(ctx, inventory.NewTxRepository(t.tx), inventory.SampleOutInput{
		TransferID:  created.ID,
		WarehouseID: created.WarehouseID,
		ProductID:   created.ProductID,
		Qty:         created.Quantity,
		Note:        created.Note,
		ActorID:     created.CreatedBy,
		PostedAt:    created.TransferDate,
	})
	if err != nil {
		if errors.Is(err, inventory.ErrNegativeStock) || errors.Is(err, inventory.ErrInvalidQuantity) {
			return intelligence.SampleTransfer{}, err
		}
		return intelligence.SampleTransfer{}, intelligence.WrapDataSource("post sample movement", err)
	}
	return created, nil
}

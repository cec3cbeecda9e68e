package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger writes to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

const insertTransactionSQL = `
INSERT INTO inventory_tx (code, tx_type, warehouse_id, ref_module, ref_id, note, posted_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

func (r *txRepo) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, insertTransactionSQL,
		tx.Code,
		string(tx.Type),
		pgtype.Int8{Int64: tx.WarehouseID, Valid: tx.WarehouseID != 0},
		tx.RefModule,
		pgtype.UUID{Bytes: tx.RefID, Valid: tx.RefID != [16]byte{}},
		tx.Note,
		pgtype.Timestamptz{Time: tx.PostedAt, Valid: true},
		pgtype.Int8{Int64: tx.CreatedBy, Valid: tx.CreatedBy != 0},
	).Scan(&id)
	return id, err
}

const insertTransactionLineSQL = `
INSERT INTO inventory_tx_lines (tx_id, product_id, qty, unit_cost, src_warehouse_id)
VALUES ($1, $2, $3, $4, $5)`

func (r *txRepo) InsertTransactionLines(ctx context.Context, txID int64, lines []TransactionLine) error {
	for _, line := range lines {
		_, err := r.tx.Exec(ctx, insertTransactionLineSQL,
			txID,
			line.ProductID,
			floatToNumeric(line.Qty),
			floatToNumeric(line.UnitCost),
			pgtype.Int8{Int64: line.SrcWarehouseID, Valid: line.SrcWarehouseID != 0},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

const getBalanceForUpdateSQL = `
SELECT warehouse_id, product_id, qty, avg_cost, updated_at
FROM inventory_balances
WHERE warehouse_id = $1 AND product_id = $2
FOR UPDATE`

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (Balance, error) {
	var (
		qty, avgCost pgtype.Numeric
		updatedAt    pgtype.Timestamptz
		bal          Balance
	)
	err := r.tx.QueryRow(ctx, getBalanceForUpdateSQL, warehouseID, productID).
		Scan(&bal.WarehouseID, &bal.ProductID, &qty, &avgCost, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{WarehouseID: warehouseID, ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	bal.Qty = numericToFloat(qty)
	bal.AvgCost = numericToFloat(avgCost)
	bal.UpdatedAt = updatedAt.Time
	return bal, nil
}

const upsertBalanceSQL = `
INSERT INTO inventory_balances (warehouse_id, product_id, qty, avg_cost, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (warehouse_id, product_id)
DO UPDATE SET qty = EXCLUDED.qty, avg_cost = EXCLUDED.avg_cost, updated_at = NOW()`

func (r *txRepo) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, upsertBalanceSQL,
		balance.WarehouseID,
		balance.ProductID,
		floatToNumeric(balance.Qty),
		floatToNumeric(balance.AvgCost),
	)
	return err
}

const insertCardEntrySQL = `
INSERT INTO inventory_cards (warehouse_id, product_id, tx_id, tx_code, tx_type, qty_in, qty_out, balance_qty, unit_cost, balance_cost, posted_at, note)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11)`

func (r *txRepo) InsertCardEntry(ctx context.Context, card StockCardEntry, warehouseID, productID int64, txID int64) error {
	_, err := r.tx.Exec(ctx, insertCardEntrySQL,
		warehouseID,
		productID,
		txID,
		card.TxCode,
		string(card.TxType),
		floatToNumeric(card.QtyOut),
		floatToNumeric(card.BalanceQty),
		floatToNumeric(card.UnitCost),
		floatToNumeric(card.BalanceCost),
		pgtype.Timestamptz{Time: card.PostedAt, Valid: true},
		card.Note,
	)
	return err
}

func numericToFloat(n pgtype.Numeric) float64 {
	f, _ := n.Float64Value()
	return f.Float64
}

func floatToNumeric(f float64) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(fmt.Sprintf("%f", f))
	return n
}

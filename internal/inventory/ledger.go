package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// TxRepository exposes the transactional writes a movement needs. It runs
// inside a transaction owned by the caller.
type TxRepository interface {
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertTransactionLines(ctx context.Context, txID int64, lines []TransactionLine) error
	GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertCardEntry(ctx context.Context, card StockCardEntry, warehouseID, productID int64, txID int64) error
}

// Ledger posts stock movements against the balance and stock card tables.
type Ledger struct {
	allowNegative bool
}

// NewLedger constructs a Ledger. allowNegative lets outbound samples draw a
// warehouse below zero.
func NewLedger(allowNegative bool) *Ledger {
	return &Ledger{allowNegative: allowNegative}
}

// PostSampleOut records an outbound movement for a sample transfer. The
// movement is costed at the balance's average cost.
func (l *Ledger) PostSampleOut(ctx context.Context, tx TxRepository, input SampleOutInput) (StockCardEntry, error) {
	if input.Qty <= 0 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return StockCardEntry{}, errors.New("inventory: warehouse and product required")
	}
	postedAt := input.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}
	code := fmt.Sprintf("SMP-%s", input.TransferID.String()[:8])

	balance, err := tx.GetBalanceForUpdate(ctx, input.WarehouseID, input.ProductID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return StockCardEntry{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{WarehouseID: input.WarehouseID, ProductID: input.ProductID}
	}
	qty := float64(input.Qty)
	newQty := balance.Qty - qty
	if !l.allowNegative && newQty < -0.0001 {
		return StockCardEntry{}, ErrNegativeStock
	}
	if math.Abs(newQty) < 0.0001 {
		newQty = 0
	}
	unitCost := balance.AvgCost
	newAvg := balance.AvgCost
	if newQty <= 0 {
		newAvg = 0
	}

	txID, err := tx.InsertTransaction(ctx, Transaction{
		Code:        code,
		Type:        TransactionTypeOut,
		WarehouseID: input.WarehouseID,
		RefModule:   RefModuleSamples,
		RefID:       input.TransferID,
		Note:        input.Note,
		PostedAt:    postedAt,
		CreatedBy:   input.ActorID,
	})
	if err != nil {
		return StockCardEntry{}, err
	}
	line := TransactionLine{
		TransactionID:  txID,
		ProductID:      input.ProductID,
		Qty:            -qty,
		UnitCost:       unitCost,
		SrcWarehouseID: input.WarehouseID,
	}
	if err := tx.InsertTransactionLines(ctx, txID, []TransactionLine{line}); err != nil {
		return StockCardEntry{}, err
	}
	balance.Qty = newQty
	balance.AvgCost = newAvg
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return StockCardEntry{}, err
	}
	card := StockCardEntry{
		TxCode:      code,
		TxType:      TransactionTypeOut,
		PostedAt:    postedAt,
		QtyOut:      qty,
		BalanceQty:  newQty,
		UnitCost:    unitCost,
		BalanceCost: newAvg,
		Note:        input.Note,
	}
	if err := tx.InsertCardEntry(ctx, card, input.WarehouseID, input.ProductID, txID); err != nil {
		return StockCardEntry{}, err
	}
	return card, nil
}

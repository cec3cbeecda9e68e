package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryTx struct {
	balances map[string]Balance
	headers  []Transaction
	lines    []TransactionLine
	cards    []StockCardEntry
	nextID   int64
}

func newMemoryTx() *memoryTx {
	return &memoryTx{balances: make(map[string]Balance)}
}

func key(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, header Transaction) (int64, error) {
	tx.nextID++
	header.ID = tx.nextID
	tx.headers = append(tx.headers, header)
	return tx.nextID, nil
}

func (tx *memoryTx) InsertTransactionLines(ctx context.Context, txID int64, lines []TransactionLine) error {
	tx.lines = append(tx.lines, lines...)
	return nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (Balance, error) {
	if bal, ok := tx.balances[key(warehouseID, productID)]; ok {
		return bal, nil
	}
	return Balance{WarehouseID: warehouseID, ProductID: productID}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.balances[key(balance.WarehouseID, balance.ProductID)] = balance
	return nil
}

func (tx *memoryTx) InsertCardEntry(ctx context.Context, card StockCardEntry, warehouseID, productID int64, txID int64) error {
	tx.cards = append(tx.cards, card)
	return nil
}

func TestPostSampleOutDrawsDownBalance(t *testing.T) {
	tx := newMemoryTx()
	tx.balances[key(1, 10)] = Balance{WarehouseID: 1, ProductID: 10, Qty: 20, AvgCost: 4.5}
	transferID := uuid.MustParse("a1b2c3d4-0000-0000-0000-000000000000")
	posted := time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)

	card, err := NewLedger(false).PostSampleOut(context.Background(), tx, SampleOutInput{
		TransferID:  transferID,
		WarehouseID: 1,
		ProductID:   10,
		Qty:         6,
		ActorID:     3,
		PostedAt:    posted,
	})
	require.NoError(t, err)
	require.Equal(t, "SMP-a1b2c3d4", card.TxCode)
	require.Equal(t, 6.0, card.QtyOut)
	require.Equal(t, 14.0, card.BalanceQty)
	require.Equal(t, 4.5, card.UnitCost)

	require.Len(t, tx.headers, 1)
	require.Equal(t, RefModuleSamples, tx.headers[0].RefModule)
	require.Equal(t, transferID, tx.headers[0].RefID)
	require.Equal(t, TransactionTypeOut, tx.headers[0].Type)
	require.Equal(t, -6.0, tx.lines[0].Qty)
	require.Equal(t, int64(1), tx.lines[0].SrcWarehouseID)
	require.Equal(t, 14.0, tx.balances[key(1, 10)].Qty)
	require.Len(t, tx.cards, 1)
}

func TestPostSampleOutRejectsNegativeStock(t *testing.T) {
	tx := newMemoryTx()
	tx.balances[key(1, 10)] = Balance{WarehouseID: 1, ProductID: 10, Qty: 2, AvgCost: 1}

	_, err := NewLedger(false).PostSampleOut(context.Background(), tx, SampleOutInput{
		TransferID: uuid.New(), WarehouseID: 1, ProductID: 10, Qty: 3,
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Empty(t, tx.headers)

	card, err := NewLedger(true).PostSampleOut(context.Background(), tx, SampleOutInput{
		TransferID: uuid.New(), WarehouseID: 1, ProductID: 10, Qty: 3,
	})
	require.NoError(t, err)
	require.Equal(t, -1.0, card.BalanceQty)
	require.Zero(t, card.BalanceCost)
}

func TestPostSampleOutValidatesInput(t *testing.T) {
	ledger := NewLedger(true)
	_, err := ledger.PostSampleOut(context.Background(), newMemoryTx(), SampleOutInput{TransferID: uuid.New(), WarehouseID: 1, ProductID: 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = ledger.PostSampleOut(context.Background(), newMemoryTx(), SampleOutInput{TransferID: uuid.New(), Qty: 1})
	require.Error(t, err)
}

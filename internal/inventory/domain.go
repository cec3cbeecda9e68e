package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates supported inventory movements.
type TransactionType string

const (
	// TransactionTypeOut represents an outbound movement.
	TransactionTypeOut TransactionType = "OUT"
)

// RefModuleSamples tags movements created by sample transfers.
const RefModuleSamples = "samples"

// Transaction models the header of inventory transaction.
type Transaction struct {
	ID          int64
	Code        string
	Type        TransactionType
	WarehouseID int64
	RefModule   string
	RefID       uuid.UUID
	Note        string
	PostedAt    time.Time
	CreatedBy   int64
}

// TransactionLine models each product movement line.
type TransactionLine struct {
	TransactionID  int64
	ProductID      int64
	Qty            float64
	UnitCost       float64
	SrcWarehouseID int64
}

// Balance summarises stock in warehouse per product.
type Balance struct {
	WarehouseID int64
	ProductID   int64
	Qty         float64
	AvgCost     float64
	UpdatedAt   time.Time
}

// StockCardEntry describes inventory card entry for reports.
type StockCardEntry struct {
	TxCode      string
	TxType      TransactionType
	PostedAt    time.Time
	QtyOut      float64
	BalanceQty  float64
	UnitCost    float64
	BalanceCost float64
	Note        string
}

// SampleOutInput describes the stock leaving a warehouse for a sample transfer.
type SampleOutInput struct {
	TransferID  uuid.UUID
	WarehouseID int64
	ProductID   int64
	Qty         int64
	Note        string
	ActorID     int64
	PostedAt    time.Time
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")

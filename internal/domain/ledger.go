package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CoinbasePrevout marks a TxInput with no ancestor transaction.
const CoinbasePrevout int64 = -1

// TxInput represents one spend reference of a transaction.
// Corresponds to tx_inputs table in the ledger snapshot.
type TxInput struct {
	TxID        int64 // spending transaction
	PrevoutTxID int64 // transaction whose output is spent, -1 for coinbase
	InputIndex  int32 // position of the input inside TxID
}

// IsCoinbase reports whether the input has no real ancestor.
func (i *TxInput) IsCoinbase() bool {
	return i.PrevoutTxID == CoinbasePrevout
}

// TxOutput represents one output of a transaction.
// Corresponds to tx_outputs table in the ledger snapshot.
type TxOutput struct {
	TxID    int64
	Address uuid.UUID
	Amount  decimal.Decimal
	IsSpent bool // false means the output is a UTXO
}

// Transaction maps a transaction to its block.
// Corresponds to transactions table in the ledger snapshot.
type Transaction struct {
	TxID    int64
	BlockID int64
}

// Block carries the block timestamp (UTC).
// Corresponds to blocks table in the ledger snapshot.
type Block struct {
	BlockID int64
	Time    time.Time
}

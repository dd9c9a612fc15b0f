package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChainEdge links a transaction to one of its ancestors, annotated with one
// output of the transaction being expanded.
type ChainEdge struct {
	StartTx     int64 // root transaction the chain was grown from
	CurrentTx   int64 // transaction being expanded
	PrevTx      int64 // immediate ancestor of CurrentTx
	InputIndex  int32 // index of the CurrentTx input that spends PrevTx
	Address     uuid.UUID
	Amount      decimal.Decimal
	IsSpent     bool
	BlockID     *int64     // NULL if CurrentTx has no transactions row
	Time        *time.Time // NULL if the block is unknown
	ChainLength int        // hops from StartTx, 1-based
}

// HourBucket returns the edge time truncated to the hour, or false if the
// edge has no time.
func (e *ChainEdge) HourBucket() (time.Time, bool) {
	if e.Time == nil {
		return time.Time{}, false
	}
	return e.Time.UTC().Truncate(time.Hour), true
}

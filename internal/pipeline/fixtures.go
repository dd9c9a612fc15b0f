package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entity-cluster-lab/internal/domain"
)

// LedgerWriter accepts ledger rows. Implemented by the memory and postgres ledger stores.
type LedgerWriter interface {
	InsertInputs(ctx context.Context, inputs []*domain.TxInput) error
	InsertOutputs(ctx context.Context, outputs []*domain.TxOutput) error
	InsertTransactions(ctx context.Context, txs []*domain.Transaction) error
	InsertBlocks(ctx context.Context, blocks []*domain.Block) error
}

// Demo ledger shape.
const (
	demoSeed      = 42
	demoAddresses = 12
	demoCoinbase  = 6
	demoTxs       = 150
	demoTxPerBlk  = 3
)

// DemoEpoch is the time of the first demo block.
var DemoEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DemoAddress returns the deterministic address with index i.
func DemoAddress(i int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("entity-cluster-lab/demo/%d", i)))
}

// DemoLedger generates a small deterministic ledger: a handful of coinbase
// transactions followed by transactions spending one or two earlier ones,
// three per hourly block.
func DemoLedger() ([]*domain.TxInput, []*domain.TxOutput, []*domain.Transaction, []*domain.Block) {
	rng := rand.New(rand.NewSource(demoSeed))

	var (
		inputs  []*domain.TxInput
		outputs []*domain.TxOutput
		txs     []*domain.Transaction
		blocks  []*domain.Block
	)
	spent := make(map[int64]bool)

	for tx := int64(1); tx <= demoTxs; tx++ {
		blockID := (tx-1)/demoTxPerBlk + 1
		if (tx-1)%demoTxPerBlk == 0 {
			blocks = append(blocks, &domain.Block{
				BlockID: blockID,
				Time:    DemoEpoch.Add(time.Duration(blockID-1) * time.Hour),
			})
		}
		txs = append(txs, &domain.Transaction{TxID: tx, BlockID: blockID})

		if tx <= demoCoinbase {
			inputs = append(inputs, &domain.TxInput{TxID: tx, PrevoutTxID: domain.CoinbasePrevout})
		} else {
			numInputs := 1 + rng.Intn(2)
			used := make(map[int64]bool)
			for i := 0; i < numInputs; i++ {
				prev := 1 + rng.Int63n(tx-1)
				if used[prev] {
					continue
				}
				used[prev] = true
				spent[prev] = true
				inputs = append(inputs, &domain.TxInput{TxID: tx, PrevoutTxID: prev, InputIndex: int32(i)})
			}
		}

		numOutputs := 1 + rng.Intn(2)
		for i := 0; i < numOutputs; i++ {
			outputs = append(outputs, &domain.TxOutput{
				TxID:    tx,
				Address: DemoAddress(rng.Intn(demoAddresses)),
				Amount:  demoAmount(rng),
			})
		}
	}

	for _, out := range outputs {
		out.IsSpent = spent[out.TxID]
	}
	return inputs, outputs, txs, blocks
}

// demoAmount draws from micro, regular and large ranges with two decimals.
func demoAmount(rng *rand.Rand) decimal.Decimal {
	var cents int64
	switch r := rng.Intn(10); {
	case r == 0:
		cents = 1 + rng.Int63n(9) // below 0.1
	case r < 8:
		cents = 100 + rng.Int63n(9900)
	default:
		cents = 10000 + rng.Int63n(90000)
	}
	return decimal.New(cents, -2)
}

// LoadDemoLedger writes the demo ledger into w.
func LoadDemoLedger(ctx context.Context, w LedgerWriter) error {
	inputs, outputs, txs, blocks := DemoLedger()

	if err := w.InsertBlocks(ctx, blocks); err != nil {
		return fmt.Errorf("insert blocks: %w", err)
	}
	if err := w.InsertTransactions(ctx, txs); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	if err := w.InsertInputs(ctx, inputs); err != nil {
		return fmt.Errorf("insert inputs: %w", err)
	}
	if err := w.InsertOutputs(ctx, outputs); err != nil {
		return fmt.Errorf("insert outputs: %w", err)
	}
	return nil
}

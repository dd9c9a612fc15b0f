// Package ledger holds the immutable, indexed input snapshot the pipeline reads.
package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

// Snapshot indexes the four input relations for lookup by key.
// It is built once per run and never mutated afterwards.
type Snapshot struct {
	inputsByTx       map[int64][]*domain.TxInput
	outputsByTx      map[int64][]*domain.TxOutput
	outputsByAddress map[uuid.UUID][]*domain.TxOutput
	spendersByTx     map[int64][]int64 // prevout tx -> spending txs
	blockByTx        map[int64]int64
	timeByBlock      map[int64]time.Time

	numInputs  int
	numOutputs int
}

// Load validates the source schema and reads all relations into a Snapshot.
// Schema failures are returned unwrapped-compatible with storage.ErrInputSchema.
func Load(ctx context.Context, src storage.LedgerSource) (*Snapshot, error) {
	if err := src.ValidateSchema(ctx); err != nil {
		return nil, err
	}

	inputs, err := src.LoadInputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", storage.RelationTxInputs, err)
	}
	outputs, err := src.LoadOutputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", storage.RelationTxOutputs, err)
	}
	txs, err := src.LoadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", storage.RelationTransactions, err)
	}
	blocks, err := src.LoadBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", storage.RelationBlocks, err)
	}

	return New(inputs, outputs, txs, blocks), nil
}

// New builds a Snapshot from in-memory rows. Nil rows are skipped.
func New(inputs []*domain.TxInput, outputs []*domain.TxOutput, txs []*domain.Transaction, blocks []*domain.Block) *Snapshot {
	s := &Snapshot{
		inputsByTx:       make(map[int64][]*domain.TxInput),
		outputsByTx:      make(map[int64][]*domain.TxOutput),
		outputsByAddress: make(map[uuid.UUID][]*domain.TxOutput),
		spendersByTx:     make(map[int64][]int64),
		blockByTx:        make(map[int64]int64, len(txs)),
		timeByBlock:      make(map[int64]time.Time, len(blocks)),
	}

	for _, in := range inputs {
		if in == nil {
			continue
		}
		s.inputsByTx[in.TxID] = append(s.inputsByTx[in.TxID], in)
		if !in.IsCoinbase() {
			s.spendersByTx[in.PrevoutTxID] = append(s.spendersByTx[in.PrevoutTxID], in.TxID)
		}
		s.numInputs++
	}
	for _, out := range outputs {
		if out == nil {
			continue
		}
		s.outputsByTx[out.TxID] = append(s.outputsByTx[out.TxID], out)
		s.outputsByAddress[out.Address] = append(s.outputsByAddress[out.Address], out)
		s.numOutputs++
	}
	for _, tx := range txs {
		if tx != nil {
			s.blockByTx[tx.TxID] = tx.BlockID
		}
	}
	for _, b := range blocks {
		if b != nil {
			s.timeByBlock[b.BlockID] = b.Time.UTC()
		}
	}

	// Canonical order so traversal output does not depend on input row order.
	for _, ins := range s.inputsByTx {
		sort.Slice(ins, func(i, j int) bool {
			if ins[i].InputIndex != ins[j].InputIndex {
				return ins[i].InputIndex < ins[j].InputIndex
			}
			return ins[i].PrevoutTxID < ins[j].PrevoutTxID
		})
	}
	for _, outs := range s.outputsByTx {
		sortOutputs(outs)
	}
	for _, outs := range s.outputsByAddress {
		sortOutputs(outs)
	}
	for tx, spenders := range s.spendersByTx {
		s.spendersByTx[tx] = uniqueSorted(spenders)
	}

	return s
}

// Inputs returns the inputs of a transaction ordered by input index.
func (s *Snapshot) Inputs(txID int64) []*domain.TxInput {
	return s.inputsByTx[txID]
}

// Outputs returns the outputs of a transaction in canonical order.
func (s *Snapshot) Outputs(txID int64) []*domain.TxOutput {
	return s.outputsByTx[txID]
}

// OutputsByAddress returns every output paying the address in canonical order.
func (s *Snapshot) OutputsByAddress(addr uuid.UUID) []*domain.TxOutput {
	return s.outputsByAddress[addr]
}

// Spenders returns the distinct transactions that spend an output of txID, ascending.
func (s *Snapshot) Spenders(txID int64) []int64 {
	return s.spendersByTx[txID]
}

// BlockOf returns the block id and time of a transaction. Each is nil when
// the corresponding row is missing.
func (s *Snapshot) BlockOf(txID int64) (*int64, *time.Time) {
	blockID, ok := s.blockByTx[txID]
	if !ok {
		return nil, nil
	}
	bid := blockID
	t, ok := s.timeByBlock[blockID]
	if !ok {
		return &bid, nil
	}
	return &bid, &t
}

// Seeds returns every transaction with at least one non-coinbase input, ascending.
func (s *Snapshot) Seeds() []int64 {
	var seeds []int64
	for txID, ins := range s.inputsByTx {
		for _, in := range ins {
			if !in.IsCoinbase() {
				seeds = append(seeds, txID)
				break
			}
		}
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	return seeds
}

// Stats reports row counts for logging.
func (s *Snapshot) Stats() (inputs, outputs, txs, blocks int) {
	return s.numInputs, s.numOutputs, len(s.blockByTx), len(s.timeByBlock)
}

func sortOutputs(outs []*domain.TxOutput) {
	sort.Slice(outs, func(i, j int) bool {
		if outs[i].TxID != outs[j].TxID {
			return outs[i].TxID < outs[j].TxID
		}
		if c := bytes.Compare(outs[i].Address[:], outs[j].Address[:]); c != 0 {
			return c < 0
		}
		if c := outs[i].Amount.Cmp(outs[j].Amount); c != 0 {
			return c < 0
		}
		return !outs[i].IsSpent && outs[j].IsSpent
	})
}

func uniqueSorted(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	for _, id := range ids {
		if len(out) == 0 || id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

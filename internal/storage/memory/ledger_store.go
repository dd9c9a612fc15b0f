package memory

import (
	"context"
	"sort"
	"sync"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

type inputKey struct {
	txID  int64
	index int32
}

// LedgerStore is an in-memory implementation of storage.LedgerSource.
// Rows are appended through the Insert methods and returned as copies.
type LedgerStore struct {
	mu      sync.RWMutex
	inputs  map[inputKey]*domain.TxInput
	outputs []*domain.TxOutput // outputs have no natural key
	txs     map[int64]*domain.Transaction
	blocks  map[int64]*domain.Block
}

// NewLedgerStore creates an empty in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		inputs: make(map[inputKey]*domain.TxInput),
		txs:    make(map[int64]*domain.Transaction),
		blocks: make(map[int64]*domain.Block),
	}
}

var _ storage.LedgerSource = (*LedgerStore)(nil)

// InsertInputs adds inputs atomically. Fails entire batch on duplicate (tx_id, input_index).
func (s *LedgerStore) InsertInputs(_ context.Context, inputs []*domain.TxInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[inputKey]struct{}, len(inputs))
	for _, in := range inputs {
		if in == nil {
			return storage.ErrInvalidInput
		}
		key := inputKey{txID: in.TxID, index: in.InputIndex}
		if _, exists := s.inputs[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, in := range inputs {
		copy := *in
		s.inputs[inputKey{txID: in.TxID, index: in.InputIndex}] = &copy
	}
	return nil
}

// InsertOutputs appends outputs.
func (s *LedgerStore) InsertOutputs(_ context.Context, outputs []*domain.TxOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, out := range outputs {
		if out == nil {
			return storage.ErrInvalidInput
		}
	}
	for _, out := range outputs {
		copy := *out
		s.outputs = append(s.outputs, &copy)
	}
	return nil
}

// InsertTransactions adds transactions atomically. Fails entire batch on duplicate tx_id.
func (s *LedgerStore) InsertTransactions(_ context.Context, txs []*domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[int64]struct{}, len(txs))
	for _, tx := range txs {
		if tx == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.txs[tx.TxID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[tx.TxID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[tx.TxID] = struct{}{}
	}

	for _, tx := range txs {
		copy := *tx
		s.txs[tx.TxID] = &copy
	}
	return nil
}

// InsertBlocks adds blocks atomically. Fails entire batch on duplicate block_id.
func (s *LedgerStore) InsertBlocks(_ context.Context, blocks []*domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[int64]struct{}, len(blocks))
	for _, b := range blocks {
		if b == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.blocks[b.BlockID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[b.BlockID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[b.BlockID] = struct{}{}
	}

	for _, b := range blocks {
		copy := *b
		copy.Time = b.Time.UTC()
		s.blocks[b.BlockID] = &copy
	}
	return nil
}

// ValidateSchema always succeeds: the in-memory relations are typed.
func (s *LedgerStore) ValidateSchema(_ context.Context) error {
	return nil
}

// LoadInputs returns all inputs ordered by (tx_id, input_index).
func (s *LedgerStore) LoadInputs(_ context.Context) ([]*domain.TxInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TxInput, 0, len(s.inputs))
	for _, in := range s.inputs {
		copy := *in
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TxID != result[j].TxID {
			return result[i].TxID < result[j].TxID
		}
		return result[i].InputIndex < result[j].InputIndex
	})
	return result, nil
}

// LoadOutputs returns all outputs in insertion order.
func (s *LedgerStore) LoadOutputs(_ context.Context) ([]*domain.TxOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TxOutput, len(s.outputs))
	for i, out := range s.outputs {
		copy := *out
		result[i] = &copy
	}
	return result, nil
}

// LoadTransactions returns all transactions ordered by tx_id.
func (s *LedgerStore) LoadTransactions(_ context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		copy := *tx
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TxID < result[j].TxID })
	return result, nil
}

// LoadBlocks returns all blocks ordered by block_id.
func (s *LedgerStore) LoadBlocks(_ context.Context) ([]*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		copy := *b
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BlockID < result[j].BlockID })
	return result, nil
}

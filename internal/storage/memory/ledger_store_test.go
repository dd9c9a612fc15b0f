package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

func TestLedgerStore_InsertAndLoad(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	inputs := []*domain.TxInput{
		{TxID: 2, PrevoutTxID: 1, InputIndex: 1},
		{TxID: 2, PrevoutTxID: 0, InputIndex: 0},
		{TxID: 1, PrevoutTxID: domain.CoinbasePrevout, InputIndex: 0},
	}
	if err := store.InsertInputs(ctx, inputs); err != nil {
		t.Fatalf("InsertInputs failed: %v", err)
	}

	addr := uuid.New()
	if err := store.InsertOutputs(ctx, []*domain.TxOutput{
		{TxID: 1, Address: addr, Amount: decimal.NewFromInt(50)},
		{TxID: 1, Address: addr, Amount: decimal.NewFromInt(50)},
	}); err != nil {
		t.Fatalf("InsertOutputs failed: %v", err)
	}

	if err := store.InsertTransactions(ctx, []*domain.Transaction{{TxID: 2, BlockID: 7}, {TxID: 1, BlockID: 6}}); err != nil {
		t.Fatalf("InsertTransactions failed: %v", err)
	}

	loc := time.FixedZone("UTC+3", 3*3600)
	if err := store.InsertBlocks(ctx, []*domain.Block{{BlockID: 6, Time: time.Date(2024, 1, 1, 12, 0, 0, 0, loc)}}); err != nil {
		t.Fatalf("InsertBlocks failed: %v", err)
	}

	if err := store.ValidateSchema(ctx); err != nil {
		t.Fatalf("ValidateSchema failed: %v", err)
	}

	gotInputs, err := store.LoadInputs(ctx)
	if err != nil {
		t.Fatalf("LoadInputs failed: %v", err)
	}
	if len(gotInputs) != 3 || gotInputs[0].TxID != 1 || gotInputs[1].InputIndex != 0 || gotInputs[2].InputIndex != 1 {
		t.Errorf("inputs not ordered by (tx_id, input_index): %+v", gotInputs)
	}

	gotOutputs, err := store.LoadOutputs(ctx)
	if err != nil {
		t.Fatalf("LoadOutputs failed: %v", err)
	}
	if len(gotOutputs) != 2 {
		t.Errorf("expected duplicate outputs to be kept, got %d", len(gotOutputs))
	}

	gotTxs, err := store.LoadTransactions(ctx)
	if err != nil {
		t.Fatalf("LoadTransactions failed: %v", err)
	}
	if len(gotTxs) != 2 || gotTxs[0].TxID != 1 {
		t.Errorf("transactions not ordered by tx_id: %+v", gotTxs)
	}

	gotBlocks, err := store.LoadBlocks(ctx)
	if err != nil {
		t.Fatalf("LoadBlocks failed: %v", err)
	}
	if gotBlocks[0].Time.Location() != time.UTC || gotBlocks[0].Time.Hour() != 9 {
		t.Errorf("expected block time normalized to 09:00 UTC, got %v", gotBlocks[0].Time)
	}
}

func TestLedgerStore_DuplicateKeys(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	err := store.InsertInputs(ctx, []*domain.TxInput{
		{TxID: 2, PrevoutTxID: 1, InputIndex: 0},
		{TxID: 2, PrevoutTxID: 3, InputIndex: 0},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch input, got %v", err)
	}

	loaded, _ := store.LoadInputs(ctx)
	if len(loaded) != 0 {
		t.Errorf("expected failed batch to insert nothing, got %d", len(loaded))
	}

	if err := store.InsertTransactions(ctx, []*domain.Transaction{{TxID: 1, BlockID: 1}}); err != nil {
		t.Fatalf("InsertTransactions failed: %v", err)
	}
	err = store.InsertTransactions(ctx, []*domain.Transaction{{TxID: 1, BlockID: 2}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for transaction, got %v", err)
	}

	err = store.InsertBlocks(ctx, []*domain.Block{{BlockID: 1}, {BlockID: 1}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for block, got %v", err)
	}
}

func TestLedgerStore_InvalidInput(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	if err := store.InsertOutputs(ctx, []*domain.TxOutput{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := store.InsertInputs(ctx, []*domain.TxInput{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

package duckdb

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"entity-cluster-lab/internal/config"
	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/ledger"
	"entity-cluster-lab/internal/pipeline"
	"entity-cluster-lab/internal/storage"
	"entity-cluster-lab/internal/storage/memory"
)

func openTestSource(t *testing.T) *LedgerSource {
	t.Helper()
	ctx := context.Background()

	src, err := Open(ctx, filepath.Join(t.TempDir(), "ledger.duckdb"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	if err := src.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	return src
}

func TestValidateSchema(t *testing.T) {
	ctx := context.Background()

	src, err := Open(ctx, "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	err = src.ValidateSchema(ctx)
	if !errors.Is(err, storage.ErrInputSchema) {
		t.Fatalf("expected schema error on empty database, got %v", err)
	}

	if err := src.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	if err := src.ValidateSchema(ctx); err != nil {
		t.Fatalf("ValidateSchema failed: %v", err)
	}

	if _, err := src.db.ExecContext(ctx, `ALTER TABLE blocks DROP COLUMN time`); err != nil {
		t.Fatalf("drop column: %v", err)
	}
	var se *storage.SchemaError
	if err := src.ValidateSchema(ctx); !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if se.Relation != "blocks" || se.Column != "time" {
		t.Errorf("unexpected schema error: %v", se)
	}
}

func TestNormalizeType(t *testing.T) {
	tests := map[string]string{
		"DECIMAL(38,18)":           "decimal",
		"BIGINT":                   "bigint",
		"TIMESTAMP WITH TIME ZONE": "timestamp with time zone",
		" UUID ":                   "uuid",
	}
	for in, want := range tests {
		if got := normalizeType(in); got != want {
			t.Errorf("normalizeType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoundTrip_ExactAmounts(t *testing.T) {
	ctx := context.Background()
	src := openTestSource(t)

	addr := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	amount := decimal.RequireFromString("0.000000000000000001")
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	if err := src.InsertBlocks(ctx, []*domain.Block{{BlockID: 3, Time: when}}); err != nil {
		t.Fatalf("InsertBlocks failed: %v", err)
	}
	if err := src.InsertOutputs(ctx, []*domain.TxOutput{{TxID: 1, Address: addr, Amount: amount}}); err != nil {
		t.Fatalf("InsertOutputs failed: %v", err)
	}

	outs, err := src.LoadOutputs(ctx)
	if err != nil {
		t.Fatalf("LoadOutputs failed: %v", err)
	}
	if len(outs) != 1 || outs[0].Address != addr || !outs[0].Amount.Equal(amount) || outs[0].IsSpent {
		t.Fatalf("unexpected output: %+v", outs[0])
	}

	blocks, err := src.LoadBlocks(ctx)
	if err != nil {
		t.Fatalf("LoadBlocks failed: %v", err)
	}
	if len(blocks) != 1 || !blocks[0].Time.Equal(when) {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
}

func TestInsertBlocks_Duplicate(t *testing.T) {
	ctx := context.Background()
	src := openTestSource(t)

	now := time.Now().UTC()
	err := src.InsertBlocks(ctx, []*domain.Block{{BlockID: 1, Time: now}, {BlockID: 1, Time: now}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	blocks, err := src.LoadBlocks(ctx)
	if err != nil {
		t.Fatalf("LoadBlocks failed: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("failed batch left %d rows", len(blocks))
	}
}

// The same ledger must produce identical records from either source.
func TestDemoLedger_MatchesMemorySource(t *testing.T) {
	ctx := context.Background()

	src := openTestSource(t)
	if err := pipeline.LoadDemoLedger(ctx, src); err != nil {
		t.Fatalf("LoadDemoLedger(duckdb) failed: %v", err)
	}
	mem := memory.NewLedgerStore()
	if err := pipeline.LoadDemoLedger(ctx, mem); err != nil {
		t.Fatalf("LoadDemoLedger(memory) failed: %v", err)
	}

	run := func(s storage.LedgerSource) *pipeline.Result {
		snap, err := ledger.Load(ctx, s)
		if err != nil {
			t.Fatalf("ledger.Load failed: %v", err)
		}
		p, err := pipeline.New(pipeline.Options{Config: config.Default(), Logger: zaptest.NewLogger(t)})
		if err != nil {
			t.Fatalf("pipeline.New failed: %v", err)
		}
		res, err := p.Run(ctx, snap, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return res
	}

	fromDuck := run(src)
	fromMem := run(mem)

	if len(fromDuck.Records) == 0 {
		t.Fatal("expected records from demo ledger")
	}
	if !reflect.DeepEqual(fromDuck.Records, fromMem.Records) {
		t.Error("records differ between duckdb and memory sources")
	}
	if !reflect.DeepEqual(fromDuck.Relationships, fromMem.Relationships) {
		t.Error("relationships differ between duckdb and memory sources")
	}
}

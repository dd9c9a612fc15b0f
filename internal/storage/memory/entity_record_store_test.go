package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

func TestEntityRecordStore_InsertAndGet(t *testing.T) {
	store := NewEntityRecordStore()
	ctx := context.Background()

	ratio := 0.25
	records := []*domain.EntityRecord{
		{EntityID: 30, EntityType: domain.EntityTypeExchange},
		{EntityID: 10, Addresses: []uuid.UUID{uuid.New()}, EntityType: domain.EntityTypeIndividual, LargeTxRatio: &ratio},
		{EntityID: 20, EntityType: domain.EntityTypeExchange},
	}
	if err := store.InsertBulk(ctx, records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByID(ctx, 10)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.LargeTxRatio == nil || *got.LargeTxRatio != 0.25 {
		t.Errorf("LargeTxRatio mismatch: %v", got.LargeTxRatio)
	}
	if len(got.Addresses) != 1 {
		t.Errorf("expected 1 address, got %d", len(got.Addresses))
	}

	got.Addresses[0] = uuid.Nil
	again, _ := store.GetByID(ctx, 10)
	if again.Addresses[0] == uuid.Nil {
		t.Error("mutating a returned record changed the stored record")
	}

	exchanges, err := store.GetByType(ctx, domain.EntityTypeExchange)
	if err != nil {
		t.Fatalf("GetByType failed: %v", err)
	}
	if len(exchanges) != 2 || exchanges[0].EntityID != 20 || exchanges[1].EntityID != 30 {
		t.Errorf("unexpected exchanges: %+v", exchanges)
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 3 || all[0].EntityID != 10 {
		t.Errorf("GetAll not ordered by entity_id")
	}
}

func TestEntityRecordStore_Duplicates(t *testing.T) {
	store := NewEntityRecordStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.EntityRecord{{EntityID: 1}, {EntityID: 1}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	if err := store.InsertBulk(ctx, []*domain.EntityRecord{{EntityID: 1}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	err = store.InsertBulk(ctx, []*domain.EntityRecord{{EntityID: 2}, {EntityID: 1}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected failed batch to be atomic, got %v", err)
	}
}

func TestRelationshipStore(t *testing.T) {
	store := NewRelationshipStore()
	ctx := context.Background()

	rels := []*domain.EntityRelationship{
		{SourceEntity: 1, TargetEntity: 3, InteractionCount: 1, TotalFlow: 2, AvgFlow: 2},
		{SourceEntity: 1, TargetEntity: 2, InteractionCount: 2, TotalFlow: 4, AvgFlow: 2},
		{SourceEntity: 3, TargetEntity: 2, InteractionCount: 1, TotalFlow: 1, AvgFlow: 1},
	}
	if err := store.InsertBulk(ctx, rels); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	out, err := store.GetBySource(ctx, 1)
	if err != nil {
		t.Fatalf("GetBySource failed: %v", err)
	}
	if len(out) != 2 || out[0].TargetEntity != 2 {
		t.Errorf("unexpected outgoing edges: %+v", out)
	}

	in, err := store.GetByTarget(ctx, 2)
	if err != nil {
		t.Fatalf("GetByTarget failed: %v", err)
	}
	if len(in) != 2 || in[0].SourceEntity != 1 || in[1].SourceEntity != 3 {
		t.Errorf("unexpected incoming edges: %+v", in)
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 3 || all[0].TargetEntity != 2 || all[1].TargetEntity != 3 || all[2].SourceEntity != 3 {
		t.Errorf("GetAll not ordered by (source, target): %+v", all)
	}

	err = store.InsertBulk(ctx, []*domain.EntityRelationship{{SourceEntity: 1, TargetEntity: 2, InteractionCount: 1}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.EntityRelationship{{SourceEntity: 5, TargetEntity: 6}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero interactions, got %v", err)
	}
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

func createTestEntityRecord(id int64, entityType domain.EntityType) *domain.EntityRecord {
	first := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	last := first.Add(2 * time.Hour)
	return &domain.EntityRecord{
		EntityID: id,
		Addresses: []uuid.UUID{
			uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		},
		FeatureStats: domain.FeatureStats{
			NumTransactions:    4,
			NumEdges:           5,
			NumChains:          2,
			MaxChainLength:     3,
			NumBlocks:          2,
			TotalVolume:        50,
			AvgTransactionSize: 10,
			MaxTransactionSize: 20,
			MinTransactionSize: 5,
			StdTransactionSize: ptr(6.1),
			VarianceTxSize:     30,
			IORatio:            ptr(0.8),
			FirstSeen:          &first,
			LastSeen:           &last,
		},
		BusinessHoursTxs: ptr(3),
		PeakTxRate:       ptr(2),
		OutDegree:        1,
		TotalOutflow:     7.5,
		EntityType:       entityType,
	}
}

func TestEntityRecordStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEntityRecordStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.EntityRecord{
		createTestEntityRecord(20, domain.EntityTypeIndividual),
		createTestEntityRecord(10, domain.EntityTypeExchange),
	}))

	got, err := store.GetByID(ctx, 10)
	require.NoError(t, err)
	want := createTestEntityRecord(10, domain.EntityTypeExchange)
	assert.Equal(t, want.Addresses, got.Addresses)
	assert.Equal(t, want.NumEdges, got.NumEdges)
	require.NotNil(t, got.StdTransactionSize)
	assert.InDelta(t, 6.1, *got.StdTransactionSize, 1e-9)
	assert.Nil(t, got.MedianTxSize)
	assert.Nil(t, got.ActivityDensity)
	require.NotNil(t, got.FirstSeen)
	assert.True(t, want.FirstSeen.Equal(*got.FirstSeen))
	assert.Equal(t, 3, *got.BusinessHoursTxs)
	assert.Nil(t, got.AvgTxRate)
	assert.Equal(t, domain.EntityTypeExchange, got.EntityType)

	_, err = store.GetByID(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(10), all[0].EntityID)
	assert.Equal(t, int64(20), all[1].EntityID)

	individuals, err := store.GetByType(ctx, domain.EntityTypeIndividual)
	require.NoError(t, err)
	require.Len(t, individuals, 1)
	assert.Equal(t, int64(20), individuals[0].EntityID)
}

func TestEntityRecordStore_DuplicateFailsBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEntityRecordStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.EntityRecord{createTestEntityRecord(1, domain.EntityTypeIndividual)}))

	err := store.InsertBulk(ctx, []*domain.EntityRecord{
		createTestEntityRecord(2, domain.EntityTypeIndividual),
		createTestEntityRecord(1, domain.EntityTypeIndividual),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

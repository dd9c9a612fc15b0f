package clickhouse

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
	seen := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	return &domain.EntityRecord{
		EntityID:  id,
		Addresses: []uuid.UUID{uuid.MustParse("00000000-0000-0000-0000-0000000000aa")},
		FeatureStats: domain.FeatureStats{
			NumTransactions:    2,
			NumEdges:           3,
			NumChains:          1,
			MaxChainLength:     2,
			NumBlocks:          1,
			TotalVolume:        9,
			AvgTransactionSize: 3,
			MaxTransactionSize: 4,
			MinTransactionSize: 2,
			StdTransactionSize: ptr(1.0),
			MedianTxSize:       ptr(3.0),
			VarianceTxSize:     0.6667,
			FirstSeen:          &seen,
			LastSeen:           &seen,
		},
		PeakTxRate: ptr(3),
		AvgTxRate:  ptr(3.0),
		InDegree:   2,
		EntityType: entityType,
	}
}

func TestEntityRecordStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEntityRecordStore(conn)

	require.NoError(t, store.InsertBulk(ctx, []*domain.EntityRecord{
		createTestEntityRecord(7, domain.EntityTypeMiningPool),
		createTestEntityRecord(3, domain.EntityTypeIndividual),
	}))

	got, err := store.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.EntityTypeMiningPool, got.EntityType)
	assert.Len(t, got.Addresses, 1)
	assert.Equal(t, 3, got.NumEdges)
	require.NotNil(t, got.MedianTxSize)
	assert.InDelta(t, 3.0, *got.MedianTxSize, 1e-9)
	assert.Nil(t, got.SpentRatio)
	assert.Nil(t, got.BusinessHoursTxs)
	require.NotNil(t, got.PeakTxRate)
	assert.Equal(t, 3, *got.PeakTxRate)
	require.NotNil(t, got.FirstSeen)
	assert.True(t, got.FirstSeen.Equal(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)))

	_, err = store.GetByID(ctx, 100)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(3), all[0].EntityID)

	pools, err := store.GetByType(ctx, domain.EntityTypeMiningPool)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, int64(7), pools[0].EntityID)
}

func TestEntityRecordStore_Duplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEntityRecordStore(conn)

	err := store.InsertBulk(ctx, []*domain.EntityRecord{
		createTestEntityRecord(1, domain.EntityTypeIndividual),
		createTestEntityRecord(1, domain.EntityTypeIndividual),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	require.NoError(t, store.InsertBulk(ctx, []*domain.EntityRecord{createTestEntityRecord(1, domain.EntityTypeIndividual)}))

	err = store.InsertBulk(ctx, []*domain.EntityRecord{createTestEntityRecord(1, domain.EntityTypeExchange)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.EntityTypeIndividual, got.EntityType)
}

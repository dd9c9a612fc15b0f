package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

func TestRelationshipStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRelationshipStore(pool)

	rels := []*domain.EntityRelationship{
		{SourceEntity: 2, TargetEntity: 1, InteractionCount: 1, TotalFlow: 4, AvgFlow: 4},
		{SourceEntity: 1, TargetEntity: 3, InteractionCount: 2, TotalFlow: 10, AvgFlow: 5},
		{SourceEntity: 1, TargetEntity: 2, InteractionCount: 1, TotalFlow: 1.5, AvgFlow: 1.5},
		{SourceEntity: 3, TargetEntity: 3, InteractionCount: 1, TotalFlow: 2, AvgFlow: 2},
	}
	require.NoError(t, store.InsertBulk(ctx, rels))

	out, err := store.GetBySource(ctx, 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].TargetEntity)
	assert.Equal(t, int64(3), out[1].TargetEntity)
	assert.Equal(t, 2, out[1].InteractionCount)

	in, err := store.GetByTarget(ctx, 3)
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, int64(1), in[0].SourceEntity)
	assert.True(t, in[1].IsSelfLoop())

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, [2]int64{1, 2}, [2]int64{all[0].SourceEntity, all[0].TargetEntity})
	assert.Equal(t, [2]int64{3, 3}, [2]int64{all[3].SourceEntity, all[3].TargetEntity})

	err = store.InsertBulk(ctx, []*domain.EntityRelationship{
		{SourceEntity: 1, TargetEntity: 2, InteractionCount: 1, TotalFlow: 1, AvgFlow: 1},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.EntityRelationship{
		{SourceEntity: 5, TargetEntity: 6, InteractionCount: 0},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

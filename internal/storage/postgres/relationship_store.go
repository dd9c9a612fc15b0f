package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

// RelationshipStore implements storage.RelationshipStore using PostgreSQL.
type RelationshipStore struct {
	pool *Pool
}

// NewRelationshipStore creates a new RelationshipStore.
func NewRelationshipStore(pool *Pool) *RelationshipStore {
	return &RelationshipStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RelationshipStore = (*RelationshipStore)(nil)

// InsertBulk copies edges in one transaction. Fails entire batch on duplicate (source, target).
func (s *RelationshipStore) InsertBulk(ctx context.Context, rels []*domain.EntityRelationship) error {
	if len(rels) == 0 {
		return nil
	}
	for _, r := range rels {
		if r == nil || r.InteractionCount <= 0 {
			return storage.ErrInvalidInput
		}
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"entity_relationships"},
			[]string{"source_entity", "target_entity", "interaction_count", "total_flow", "avg_flow"},
			pgx.CopyFromSlice(len(rels), func(i int) ([]any, error) {
				r := rels[i]
				return []any{r.SourceEntity, r.TargetEntity, int32(r.InteractionCount), r.TotalFlow, r.AvgFlow}, nil
			}),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("copy entity relationships: %w", err)
		}
		return nil
	})
}

// GetBySource retrieves outgoing edges of an entity, ordered by target ASC.
func (s *RelationshipStore) GetBySource(ctx context.Context, entityID int64) ([]*domain.EntityRelationship, error) {
	return s.query(ctx, `
		SELECT source_entity, target_entity, interaction_count, total_flow, avg_flow
		FROM entity_relationships
		WHERE source_entity = $1
		ORDER BY target_entity ASC
	`, entityID)
}

// GetByTarget retrieves incoming edges of an entity, ordered by source ASC.
func (s *RelationshipStore) GetByTarget(ctx context.Context, entityID int64) ([]*domain.EntityRelationship, error) {
	return s.query(ctx, `
		SELECT source_entity, target_entity, interaction_count, total_flow, avg_flow
		FROM entity_relationships
		WHERE target_entity = $1
		ORDER BY source_entity ASC
	`, entityID)
}

// GetAll retrieves all edges ordered by (source, target) ASC.
func (s *RelationshipStore) GetAll(ctx context.Context) ([]*domain.EntityRelationship, error) {
	return s.query(ctx, `
		SELECT source_entity, target_entity, interaction_count, total_flow, avg_flow
		FROM entity_relationships
		ORDER BY source_entity ASC, target_entity ASC
	`)
}

func (s *RelationshipStore) query(ctx context.Context, query string, args ...any) ([]*domain.EntityRelationship, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entity relationships: %w", err)
	}
	defer rows.Close()

	var result []*domain.EntityRelationship
	for rows.Next() {
		var r domain.EntityRelationship
		if err := rows.Scan(&r.SourceEntity, &r.TargetEntity, &r.InteractionCount, &r.TotalFlow, &r.AvgFlow); err != nil {
			return nil, fmt.Errorf("scan entity relationship: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity relationships: %w", err)
	}
	return result, nil
}

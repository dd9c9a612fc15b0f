package clickhouse

import (
	"context"
	"fmt"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

// RelationshipStore implements storage.RelationshipStore using ClickHouse.
type RelationshipStore struct {
	conn *Conn
}

// NewRelationshipStore creates a new RelationshipStore.
func NewRelationshipStore(conn *Conn) *RelationshipStore {
	return &RelationshipStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RelationshipStore = (*RelationshipStore)(nil)

// InsertBulk adds multiple edges in one batch. Fails entire batch on duplicate (source, target).
func (s *RelationshipStore) InsertBulk(ctx context.Context, rels []*domain.EntityRelationship) error {
	if len(rels) == 0 {
		return nil
	}

	type pairKey struct{ src, tgt int64 }
	seen := make(map[pairKey]struct{}, len(rels))
	for _, r := range rels {
		if r == nil || r.InteractionCount <= 0 {
			return storage.ErrInvalidInput
		}
		k := pairKey{r.SourceEntity, r.TargetEntity}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, r := range rels {
		exists, err := s.exists(ctx, r.SourceEntity, r.TargetEntity)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO entity_relationships (
			source_entity, target_entity, interaction_count, total_flow, avg_flow
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rels {
		if err := batch.Append(r.SourceEntity, r.TargetEntity, int32(r.InteractionCount), r.TotalFlow, r.AvgFlow); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySource retrieves outgoing edges of an entity, ordered by target ASC.
func (s *RelationshipStore) GetBySource(ctx context.Context, entityID int64) ([]*domain.EntityRelationship, error) {
	return s.query(ctx, `
		SELECT source_entity, target_entity, interaction_count, total_flow, avg_flow
		FROM entity_relationships FINAL
		WHERE source_entity = ?
		ORDER BY target_entity ASC
	`, entityID)
}

// GetByTarget retrieves incoming edges of an entity, ordered by source ASC.
func (s *RelationshipStore) GetByTarget(ctx context.Context, entityID int64) ([]*domain.EntityRelationship, error) {
	return s.query(ctx, `
		SELECT source_entity, target_entity, interaction_count, total_flow, avg_flow
		FROM entity_relationships FINAL
		WHERE target_entity = ?
		ORDER BY source_entity ASC
	`, entityID)
}

// GetAll retrieves all edges ordered by (source, target) ASC.
func (s *RelationshipStore) GetAll(ctx context.Context) ([]*domain.EntityRelationship, error) {
	return s.query(ctx, `
		SELECT source_entity, target_entity, interaction_count, total_flow, avg_flow
		FROM entity_relationships FINAL
		ORDER BY source_entity ASC, target_entity ASC
	`)
}

func (s *RelationshipStore) query(ctx context.Context, query string, args ...any) ([]*domain.EntityRelationship, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entity relationships: %w", err)
	}
	defer rows.Close()

	var result []*domain.EntityRelationship
	for rows.Next() {
		var (
			r     domain.EntityRelationship
			count int32
		)
		if err := rows.Scan(&r.SourceEntity, &r.TargetEntity, &count, &r.TotalFlow, &r.AvgFlow); err != nil {
			return nil, fmt.Errorf("scan entity relationship: %w", err)
		}
		r.InteractionCount = int(count)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity relationships: %w", err)
	}
	return result, nil
}

// exists checks if an edge with the given key exists.
func (s *RelationshipStore) exists(ctx context.Context, source, target int64) (bool, error) {
	n, err := s.conn.count(ctx, `
		SELECT count()
		FROM entity_relationships FINAL
		WHERE source_entity = ? AND target_entity = ?
	`, source, target)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

type relationshipKey struct {
	source int64
	target int64
}

// RelationshipStore is an in-memory implementation of storage.RelationshipStore.
type RelationshipStore struct {
	mu   sync.RWMutex
	data map[relationshipKey]*domain.EntityRelationship
}

// NewRelationshipStore creates a new in-memory relationship store.
func NewRelationshipStore() *RelationshipStore {
	return &RelationshipStore{
		data: make(map[relationshipKey]*domain.EntityRelationship),
	}
}

var _ storage.RelationshipStore = (*RelationshipStore)(nil)

// InsertBulk adds multiple edges atomically. Fails entire batch on any duplicate.
func (s *RelationshipStore) InsertBulk(_ context.Context, rels []*domain.EntityRelationship) error {
	if len(rels) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[relationshipKey]struct{}, len(rels))
	for _, r := range rels {
		if r == nil || r.InteractionCount <= 0 {
			return storage.ErrInvalidInput
		}
		key := relationshipKey{source: r.SourceEntity, target: r.TargetEntity}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range rels {
		copy := *r
		s.data[relationshipKey{source: r.SourceEntity, target: r.TargetEntity}] = &copy
	}
	return nil
}

// GetBySource retrieves outgoing edges of an entity, ordered by target ASC.
func (s *RelationshipStore) GetBySource(_ context.Context, entityID int64) ([]*domain.EntityRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EntityRelationship
	for key, r := range s.data {
		if key.source == entityID {
			copy := *r
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TargetEntity < result[j].TargetEntity
	})
	return result, nil
}

// GetByTarget retrieves incoming edges of an entity, ordered by source ASC.
func (s *RelationshipStore) GetByTarget(_ context.Context, entityID int64) ([]*domain.EntityRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EntityRelationship
	for key, r := range s.data {
		if key.target == entityID {
			copy := *r
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SourceEntity < result[j].SourceEntity
	})
	return result, nil
}

// GetAll retrieves all edges ordered by (source, target) ASC.
func (s *RelationshipStore) GetAll(_ context.Context) ([]*domain.EntityRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.EntityRelationship, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SourceEntity != result[j].SourceEntity {
			return result[i].SourceEntity < result[j].SourceEntity
		}
		return result[i].TargetEntity < result[j].TargetEntity
	})
	return result, nil
}

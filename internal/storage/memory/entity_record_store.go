package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

// EntityRecordStore is an in-memory implementation of storage.EntityRecordStore.
type EntityRecordStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.EntityRecord // keyed by entity_id
}

// NewEntityRecordStore creates a new in-memory entity record store.
func NewEntityRecordStore() *EntityRecordStore {
	return &EntityRecordStore{
		data: make(map[int64]*domain.EntityRecord),
	}
}

var _ storage.EntityRecordStore = (*EntityRecordStore)(nil)

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *EntityRecordStore) InsertBulk(_ context.Context, records []*domain.EntityRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[int64]struct{}, len(records))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.EntityID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.EntityID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.EntityID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range records {
		s.data[r.EntityID] = cloneRecord(r)
	}
	return nil
}

// GetByID retrieves a record by entity id. Returns ErrNotFound if not exists.
func (s *EntityRecordStore) GetByID(_ context.Context, entityID int64) (*domain.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[entityID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(r), nil
}

// GetByType retrieves all records with the given label, ordered by entity_id ASC.
func (s *EntityRecordStore) GetByType(_ context.Context, entityType domain.EntityType) ([]*domain.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EntityRecord
	for _, r := range s.data {
		if r.EntityType == entityType {
			result = append(result, cloneRecord(r))
		}
	}
	sortRecords(result)
	return result, nil
}

// GetAll retrieves all records ordered by entity_id ASC.
func (s *EntityRecordStore) GetAll(_ context.Context) ([]*domain.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.EntityRecord, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, cloneRecord(r))
	}
	sortRecords(result)
	return result, nil
}

func sortRecords(records []*domain.EntityRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].EntityID < records[j].EntityID
	})
}

// cloneRecord copies the record and its address slice. Pointer fields are
// shared; records are never mutated after creation.
func cloneRecord(r *domain.EntityRecord) *domain.EntityRecord {
	copy := *r
	copy.Addresses = append([]uuid.UUID(nil), r.Addresses...)
	return &copy
}

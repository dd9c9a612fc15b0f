package storage

import (
	"context"

	"entity-cluster-lab/internal/domain"
)

// Ledger relation names.
const (
	RelationTxInputs     = "tx_inputs"
	RelationTxOutputs    = "tx_outputs"
	RelationTransactions = "transactions"
	RelationBlocks       = "blocks"
)

// ColumnSpec describes one required input column.
type ColumnSpec struct {
	Name string
	// Types lists accepted lower-case engine type names.
	Types []string
}

// LedgerSchema lists the required columns of every input relation, in load order.
var LedgerSchema = []struct {
	Relation string
	Columns  []ColumnSpec
}{
	{RelationTxInputs, []ColumnSpec{
		{"tx_id", []string{"bigint", "int64"}},
		{"prevout_tx_id", []string{"bigint", "int64"}},
		{"input_index", []string{"integer", "int32", "int"}},
	}},
	{RelationTxOutputs, []ColumnSpec{
		{"tx_id", []string{"bigint", "int64"}},
		{"address", []string{"uuid"}},
		{"amount", []string{"numeric", "decimal"}},
		{"is_spent", []string{"boolean", "bool"}},
	}},
	{RelationTransactions, []ColumnSpec{
		{"tx_id", []string{"bigint", "int64"}},
		{"block_id", []string{"bigint", "int64"}},
	}},
	{RelationBlocks, []ColumnSpec{
		{"block_id", []string{"bigint", "int64"}},
		{"time", []string{"timestamp with time zone", "timestamp without time zone", "timestamp", "timestamptz", "timestamp_tz"}},
	}},
}

// LedgerSource reads the immutable input snapshot.
type LedgerSource interface {
	// ValidateSchema returns a *SchemaError if a relation or column is missing or mistyped.
	ValidateSchema(ctx context.Context) error

	// LoadInputs returns all tx_inputs rows.
	LoadInputs(ctx context.Context) ([]*domain.TxInput, error)

	// LoadOutputs returns all tx_outputs rows.
	LoadOutputs(ctx context.Context) ([]*domain.TxOutput, error)

	// LoadTransactions returns all transactions rows.
	LoadTransactions(ctx context.Context) ([]*domain.Transaction, error)

	// LoadBlocks returns all blocks rows.
	LoadBlocks(ctx context.Context) ([]*domain.Block, error)
}

// EntityRecordStore provides access to entity_records storage.
type EntityRecordStore interface {
	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate entity_id.
	InsertBulk(ctx context.Context, records []*domain.EntityRecord) error

	// GetByID retrieves a record by entity id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, entityID int64) (*domain.EntityRecord, error)

	// GetByType retrieves all records with the given label, ordered by entity_id ASC.
	GetByType(ctx context.Context, entityType domain.EntityType) ([]*domain.EntityRecord, error)

	// GetAll retrieves all records ordered by entity_id ASC.
	GetAll(ctx context.Context) ([]*domain.EntityRecord, error)
}

// RelationshipStore provides access to entity_relationships storage.
type RelationshipStore interface {
	// InsertBulk adds multiple edges atomically. Fails entire batch on duplicate (source, target).
	InsertBulk(ctx context.Context, rels []*domain.EntityRelationship) error

	// GetBySource retrieves outgoing edges of an entity, ordered by target ASC.
	GetBySource(ctx context.Context, entityID int64) ([]*domain.EntityRelationship, error)

	// GetByTarget retrieves incoming edges of an entity, ordered by source ASC.
	GetByTarget(ctx context.Context, entityID int64) ([]*domain.EntityRelationship, error)

	// GetAll retrieves all edges ordered by (source, target) ASC.
	GetAll(ctx context.Context) ([]*domain.EntityRelationship, error)
}

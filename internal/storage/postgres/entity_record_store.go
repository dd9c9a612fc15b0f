package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

const entityRecordColumns = `
	entity_id, addresses,
	num_transactions, num_edges, num_chains, max_chain_length, positional_diversity, num_blocks,
	total_volume, avg_transaction_size, max_transaction_size, min_transaction_size,
	std_transaction_size, median_tx_size, variance_tx_size,
	unique_inputs, unique_outputs, unspent_balance, spent_balance, spent_ratio, io_ratio,
	activity_density, avg_value_per_tx, first_seen, last_seen,
	business_hours_txs, large_tx_ratio, micro_tx_ratio, address_reuse_ratio,
	peak_tx_rate, avg_tx_rate, peak_volume_rate, avg_volume_rate,
	out_degree, in_degree, total_outflow, total_inflow,
	entity_type`

// EntityRecordStore implements storage.EntityRecordStore using PostgreSQL.
type EntityRecordStore struct {
	pool *Pool
}

// NewEntityRecordStore creates a new EntityRecordStore.
func NewEntityRecordStore(pool *Pool) *EntityRecordStore {
	return &EntityRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EntityRecordStore = (*EntityRecordStore)(nil)

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *EntityRecordStore) InsertBulk(ctx context.Context, records []*domain.EntityRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO entity_records (` + entityRecordColumns + `) VALUES (
		$1, $2,
		$3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, $15,
		$16, $17, $18, $19, $20, $21,
		$22, $23, $24, $25,
		$26, $27, $28, $29,
		$30, $31, $32, $33,
		$34, $35, $36, $37,
		$38
	)`

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			if r == nil {
				return storage.ErrInvalidInput
			}
			batch.Queue(query,
				r.EntityID, toUUIDs(r.Addresses),
				r.NumTransactions, r.NumEdges, r.NumChains, r.MaxChainLength, r.PositionalDiversity, r.NumBlocks,
				r.TotalVolume, r.AvgTransactionSize, r.MaxTransactionSize, r.MinTransactionSize,
				r.StdTransactionSize, r.MedianTxSize, r.VarianceTxSize,
				r.UniqueInputs, r.UniqueOutputs, r.UnspentBalance, r.SpentBalance, r.SpentRatio, r.IORatio,
				r.ActivityDensity, r.AvgValuePerTx, r.FirstSeen, r.LastSeen,
				r.BusinessHoursTxs, r.LargeTxRatio, r.MicroTxRatio, r.AddressReuseRatio,
				r.PeakTxRate, r.AvgTxRate, r.PeakVolumeRate, r.AvgVolumeRate,
				r.OutDegree, r.InDegree, r.TotalOutflow, r.TotalInflow,
				string(r.EntityType),
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				results.Close()
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert entity record in bulk: %w", err)
			}
		}
		return results.Close()
	})
}

// GetByID retrieves a record by entity id. Returns ErrNotFound if not exists.
func (s *EntityRecordStore) GetByID(ctx context.Context, entityID int64) (*domain.EntityRecord, error) {
	query := `SELECT ` + entityRecordColumns + ` FROM entity_records WHERE entity_id = $1`

	r, err := scanEntityRecord(s.pool.QueryRow(ctx, query, entityID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get entity record by id: %w", err)
	}
	return r, nil
}

// GetByType retrieves all records with the given label, ordered by entity_id ASC.
func (s *EntityRecordStore) GetByType(ctx context.Context, entityType domain.EntityType) ([]*domain.EntityRecord, error) {
	query := `SELECT ` + entityRecordColumns + ` FROM entity_records WHERE entity_type = $1 ORDER BY entity_id ASC`

	rows, err := s.pool.Query(ctx, query, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("get entity records by type: %w", err)
	}
	defer rows.Close()

	return scanEntityRecords(rows)
}

// GetAll retrieves all records ordered by entity_id ASC.
func (s *EntityRecordStore) GetAll(ctx context.Context) ([]*domain.EntityRecord, error) {
	query := `SELECT ` + entityRecordColumns + ` FROM entity_records ORDER BY entity_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all entity records: %w", err)
	}
	defer rows.Close()

	return scanEntityRecords(rows)
}

// scanEntityRecord scans a single row into EntityRecord.
func scanEntityRecord(row pgx.Row) (*domain.EntityRecord, error) {
	var (
		r          domain.EntityRecord
		addrs      []pgtype.UUID
		entityType string
	)
	err := row.Scan(
		&r.EntityID, &addrs,
		&r.NumTransactions, &r.NumEdges, &r.NumChains, &r.MaxChainLength, &r.PositionalDiversity, &r.NumBlocks,
		&r.TotalVolume, &r.AvgTransactionSize, &r.MaxTransactionSize, &r.MinTransactionSize,
		&r.StdTransactionSize, &r.MedianTxSize, &r.VarianceTxSize,
		&r.UniqueInputs, &r.UniqueOutputs, &r.UnspentBalance, &r.SpentBalance, &r.SpentRatio, &r.IORatio,
		&r.ActivityDensity, &r.AvgValuePerTx, &r.FirstSeen, &r.LastSeen,
		&r.BusinessHoursTxs, &r.LargeTxRatio, &r.MicroTxRatio, &r.AddressReuseRatio,
		&r.PeakTxRate, &r.AvgTxRate, &r.PeakVolumeRate, &r.AvgVolumeRate,
		&r.OutDegree, &r.InDegree, &r.TotalOutflow, &r.TotalInflow,
		&entityType,
	)
	if err != nil {
		return nil, err
	}
	r.Addresses = fromUUIDs(addrs)
	r.EntityType = domain.EntityType(entityType)
	if r.FirstSeen != nil {
		t := r.FirstSeen.UTC()
		r.FirstSeen = &t
	}
	if r.LastSeen != nil {
		t := r.LastSeen.UTC()
		r.LastSeen = &t
	}
	return &r, nil
}

// scanEntityRecords scans multiple rows into EntityRecord slice.
func scanEntityRecords(rows pgx.Rows) ([]*domain.EntityRecord, error) {
	var result []*domain.EntityRecord
	for rows.Next() {
		r, err := scanEntityRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity record: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity records: %w", err)
	}
	return result, nil
}

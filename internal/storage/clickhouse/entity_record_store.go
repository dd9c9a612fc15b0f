package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

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

// EntityRecordStore implements storage.EntityRecordStore using ClickHouse.
type EntityRecordStore struct {
	conn *Conn
}

// NewEntityRecordStore creates a new EntityRecordStore.
func NewEntityRecordStore(conn *Conn) *EntityRecordStore {
	return &EntityRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EntityRecordStore = (*EntityRecordStore)(nil)

// InsertBulk adds multiple records in one batch. Fails entire batch on any duplicate.
func (s *EntityRecordStore) InsertBulk(ctx context.Context, records []*domain.EntityRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	ids := make([]int64, 0, len(records))
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[r.EntityID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.EntityID] = struct{}{}
		ids = append(ids, r.EntityID)
	}

	// ReplacingMergeTree would silently replace, so check existing rows first
	n, err := s.conn.count(ctx, `SELECT count() FROM entity_records FINAL WHERE has(?, entity_id)`, ids)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if n > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO entity_records (`+entityRecordColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.EntityID, r.Addresses,
			int32(r.NumTransactions), int32(r.NumEdges), int32(r.NumChains),
			int32(r.MaxChainLength), int32(r.PositionalDiversity), int32(r.NumBlocks),
			r.TotalVolume, r.AvgTransactionSize, r.MaxTransactionSize, r.MinTransactionSize,
			r.StdTransactionSize, r.MedianTxSize, r.VarianceTxSize,
			int32(r.UniqueInputs), int32(r.UniqueOutputs), r.UnspentBalance, r.SpentBalance, r.SpentRatio, r.IORatio,
			r.ActivityDensity, r.AvgValuePerTx, utcPtr(r.FirstSeen), utcPtr(r.LastSeen),
			nullableInt32(r.BusinessHoursTxs), r.LargeTxRatio, r.MicroTxRatio, r.AddressReuseRatio,
			nullableInt32(r.PeakTxRate), r.AvgTxRate, r.PeakVolumeRate, r.AvgVolumeRate,
			int32(r.OutDegree), int32(r.InDegree), r.TotalOutflow, r.TotalInflow,
			string(r.EntityType),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByID retrieves a record by entity id. Returns ErrNotFound if not exists.
func (s *EntityRecordStore) GetByID(ctx context.Context, entityID int64) (*domain.EntityRecord, error) {
	records, err := s.query(ctx, `SELECT `+entityRecordColumns+` FROM entity_records FINAL WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// GetByType retrieves all records with the given label, ordered by entity_id ASC.
func (s *EntityRecordStore) GetByType(ctx context.Context, entityType domain.EntityType) ([]*domain.EntityRecord, error) {
	return s.query(ctx, `SELECT `+entityRecordColumns+` FROM entity_records FINAL WHERE entity_type = ? ORDER BY entity_id ASC`, string(entityType))
}

// GetAll retrieves all records ordered by entity_id ASC.
func (s *EntityRecordStore) GetAll(ctx context.Context) ([]*domain.EntityRecord, error) {
	return s.query(ctx, `SELECT `+entityRecordColumns+` FROM entity_records FINAL ORDER BY entity_id ASC`)
}

func (s *EntityRecordStore) query(ctx context.Context, query string, args ...any) ([]*domain.EntityRecord, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entity records: %w", err)
	}
	defer rows.Close()

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

func scanEntityRecord(rows driver.Rows) (*domain.EntityRecord, error) {
	var (
		r                                                     domain.EntityRecord
		addrs                                                 []uuid.UUID
		numTx, numEdges, numChains, maxLen, posDiv, numBlocks int32
		uniqueIn, uniqueOut, outDeg, inDeg                    int32
		businessHours, peakRate                               *int32
		firstSeen, lastSeen                                   *time.Time
		entityType                                            string
	)
	err := rows.Scan(
		&r.EntityID, &addrs,
		&numTx, &numEdges, &numChains, &maxLen, &posDiv, &numBlocks,
		&r.TotalVolume, &r.AvgTransactionSize, &r.MaxTransactionSize, &r.MinTransactionSize,
		&r.StdTransactionSize, &r.MedianTxSize, &r.VarianceTxSize,
		&uniqueIn, &uniqueOut, &r.UnspentBalance, &r.SpentBalance, &r.SpentRatio, &r.IORatio,
		&r.ActivityDensity, &r.AvgValuePerTx, &firstSeen, &lastSeen,
		&businessHours, &r.LargeTxRatio, &r.MicroTxRatio, &r.AddressReuseRatio,
		&peakRate, &r.AvgTxRate, &r.PeakVolumeRate, &r.AvgVolumeRate,
		&outDeg, &inDeg, &r.TotalOutflow, &r.TotalInflow,
		&entityType,
	)
	if err != nil {
		return nil, err
	}

	r.Addresses = addrs
	r.NumTransactions = int(numTx)
	r.NumEdges = int(numEdges)
	r.NumChains = int(numChains)
	r.MaxChainLength = int(maxLen)
	r.PositionalDiversity = int(posDiv)
	r.NumBlocks = int(numBlocks)
	r.UniqueInputs = int(uniqueIn)
	r.UniqueOutputs = int(uniqueOut)
	r.OutDegree = int(outDeg)
	r.InDegree = int(inDeg)
	r.BusinessHoursTxs = fromNullableInt32(businessHours)
	r.PeakTxRate = fromNullableInt32(peakRate)
	r.FirstSeen = utcPtr(firstSeen)
	r.LastSeen = utcPtr(lastSeen)
	r.EntityType = domain.EntityType(entityType)
	return &r, nil
}

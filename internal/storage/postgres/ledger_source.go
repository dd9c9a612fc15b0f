package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

// LedgerSource implements storage.LedgerSource over the ledger tables.
// It also writes ledger rows, which is used to seed databases.
type LedgerSource struct {
	pool *Pool
}

// NewLedgerSource creates a new LedgerSource.
func NewLedgerSource(pool *Pool) *LedgerSource {
	return &LedgerSource{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerSource = (*LedgerSource)(nil)

// ValidateSchema checks every required column through information_schema.
func (s *LedgerSource) ValidateSchema(ctx context.Context) error {
	tables := make([]string, 0, len(storage.LedgerSchema))
	for _, rel := range storage.LedgerSchema {
		tables = append(tables, rel.Relation)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ANY($1)
	`, tables)
	if err != nil {
		return fmt.Errorf("query information_schema: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]map[string]string)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		if columns[table] == nil {
			columns[table] = make(map[string]string)
		}
		columns[table][column] = dataType
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns: %w", err)
	}

	return checkSchema(columns)
}

// checkSchema compares discovered column types against storage.LedgerSchema.
func checkSchema(columns map[string]map[string]string) error {
	for _, rel := range storage.LedgerSchema {
		cols, ok := columns[rel.Relation]
		if !ok {
			return &storage.SchemaError{Relation: rel.Relation, Reason: "relation not found"}
		}
		for _, want := range rel.Columns {
			dataType, ok := cols[want.Name]
			if !ok {
				return &storage.SchemaError{Relation: rel.Relation, Column: want.Name, Reason: "column not found"}
			}
			if !slices.Contains(want.Types, dataType) {
				return &storage.SchemaError{
					Relation: rel.Relation,
					Column:   want.Name,
					Reason:   fmt.Sprintf("unexpected type %q, want one of %v", dataType, want.Types),
				}
			}
		}
	}
	return nil
}

// LoadInputs returns all tx_inputs rows ordered by (tx_id, input_index).
func (s *LedgerSource) LoadInputs(ctx context.Context) ([]*domain.TxInput, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_id, prevout_tx_id, input_index
		FROM tx_inputs
		ORDER BY tx_id ASC, input_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tx_inputs: %w", err)
	}
	defer rows.Close()

	var result []*domain.TxInput
	for rows.Next() {
		var in domain.TxInput
		if err := rows.Scan(&in.TxID, &in.PrevoutTxID, &in.InputIndex); err != nil {
			return nil, fmt.Errorf("scan tx_input: %w", err)
		}
		result = append(result, &in)
	}
	return result, rows.Err()
}

// LoadOutputs returns all tx_outputs rows ordered by tx_id.
func (s *LedgerSource) LoadOutputs(ctx context.Context) ([]*domain.TxOutput, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_id, address, amount, is_spent
		FROM tx_outputs
		ORDER BY tx_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tx_outputs: %w", err)
	}
	defer rows.Close()

	var result []*domain.TxOutput
	for rows.Next() {
		var (
			out    domain.TxOutput
			addr   pgtype.UUID
			amount pgtype.Numeric
		)
		if err := rows.Scan(&out.TxID, &addr, &amount, &out.IsSpent); err != nil {
			return nil, fmt.Errorf("scan tx_output: %w", err)
		}
		if !addr.Valid {
			return nil, fmt.Errorf("tx_output %d: null address", out.TxID)
		}
		out.Address = addr.Bytes
		if out.Amount, err = fromNumeric(amount); err != nil {
			return nil, fmt.Errorf("tx_output %d amount: %w", out.TxID, err)
		}
		result = append(result, &out)
	}
	return result, rows.Err()
}

// LoadTransactions returns all transactions rows ordered by tx_id.
func (s *LedgerSource) LoadTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT tx_id, block_id FROM transactions ORDER BY tx_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.TxID, &tx.BlockID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, &tx)
	}
	return result, rows.Err()
}

// LoadBlocks returns all blocks rows ordered by block_id, times in UTC.
func (s *LedgerSource) LoadBlocks(ctx context.Context) ([]*domain.Block, error) {
	rows, err := s.pool.Query(ctx, `SELECT block_id, time FROM blocks ORDER BY block_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var result []*domain.Block
	for rows.Next() {
		var b domain.Block
		if err := rows.Scan(&b.BlockID, &b.Time); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.Time = b.Time.UTC()
		result = append(result, &b)
	}
	return result, rows.Err()
}

// InsertInputs copies inputs in one transaction. Fails entire batch on duplicate (tx_id, input_index).
func (s *LedgerSource) InsertInputs(ctx context.Context, inputs []*domain.TxInput) error {
	return s.copyRows(ctx, storage.RelationTxInputs, []string{"tx_id", "prevout_tx_id", "input_index"}, len(inputs),
		func(i int) []any {
			in := inputs[i]
			return []any{in.TxID, in.PrevoutTxID, in.InputIndex}
		})
}

// InsertOutputs copies outputs in one transaction.
func (s *LedgerSource) InsertOutputs(ctx context.Context, outputs []*domain.TxOutput) error {
	return s.copyRows(ctx, storage.RelationTxOutputs, []string{"tx_id", "address", "amount", "is_spent"}, len(outputs),
		func(i int) []any {
			out := outputs[i]
			return []any{out.TxID, toUUID(out.Address), toNumeric(out.Amount), out.IsSpent}
		})
}

// InsertTransactions copies transactions in one transaction. Fails entire batch on duplicate tx_id.
func (s *LedgerSource) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	return s.copyRows(ctx, storage.RelationTransactions, []string{"tx_id", "block_id"}, len(txs),
		func(i int) []any {
			return []any{txs[i].TxID, txs[i].BlockID}
		})
}

// InsertBlocks copies blocks in one transaction. Fails entire batch on duplicate block_id.
func (s *LedgerSource) InsertBlocks(ctx context.Context, blocks []*domain.Block) error {
	return s.copyRows(ctx, storage.RelationBlocks, []string{"block_id", "time"}, len(blocks),
		func(i int) []any {
			return []any{blocks[i].BlockID, blocks[i].Time.UTC()}
		})
}

func (s *LedgerSource) copyRows(ctx context.Context, table string, columns []string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns,
			pgx.CopyFromSlice(n, func(i int) ([]any, error) { return row(i), nil }))
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("copy %s: %w", table, err)
		}
		return nil
	})
}

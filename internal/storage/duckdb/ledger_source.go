// Package duckdb reads the ledger snapshot from an embedded DuckDB database file.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

// ledgerDDL creates the ledger relations when seeding a fresh file.
const ledgerDDL = `
CREATE TABLE IF NOT EXISTS blocks (
    block_id BIGINT PRIMARY KEY,
    time     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
    tx_id    BIGINT PRIMARY KEY,
    block_id BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS tx_inputs (
    tx_id         BIGINT  NOT NULL,
    prevout_tx_id BIGINT  NOT NULL,
    input_index   INTEGER NOT NULL,
    PRIMARY KEY (tx_id, input_index)
);
CREATE TABLE IF NOT EXISTS tx_outputs (
    tx_id    BIGINT         NOT NULL,
    address  UUID           NOT NULL,
    amount   DECIMAL(38,18) NOT NULL,
    is_spent BOOLEAN        NOT NULL
);
`

// LedgerSource implements storage.LedgerSource over a DuckDB file.
type LedgerSource struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. An empty path is in-memory.
func Open(ctx context.Context, path string) (*LedgerSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	// An in-memory database lives in one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &LedgerSource{db: db}, nil
}

// Close closes the database.
func (s *LedgerSource) Close() error {
	return s.db.Close()
}

// CreateSchema creates the ledger tables if they do not exist.
func (s *LedgerSource) CreateSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ storage.LedgerSource = (*LedgerSource)(nil)

// ValidateSchema checks every required column through information_schema.
func (s *LedgerSource) ValidateSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
	`)
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
		columns[table][column] = normalizeType(dataType)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns: %w", err)
	}

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

// normalizeType lower-cases a DuckDB type name and drops precision, e.g. DECIMAL(38,18) -> decimal.
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return t
}

// LoadInputs returns all tx_inputs rows ordered by (tx_id, input_index).
func (s *LedgerSource) LoadInputs(ctx context.Context) ([]*domain.TxInput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, prevout_tx_id, input_index
		FROM tx_inputs
		ORDER BY tx_id, input_index
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
// Address and amount are read as text to keep the decimal exact.
func (s *LedgerSource) LoadOutputs(ctx context.Context) ([]*domain.TxOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, CAST(address AS VARCHAR), CAST(amount AS VARCHAR), is_spent
		FROM tx_outputs
		ORDER BY tx_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query tx_outputs: %w", err)
	}
	defer rows.Close()

	var result []*domain.TxOutput
	for rows.Next() {
		var (
			out          domain.TxOutput
			addr, amount string
		)
		if err := rows.Scan(&out.TxID, &addr, &amount, &out.IsSpent); err != nil {
			return nil, fmt.Errorf("scan tx_output: %w", err)
		}
		if out.Address, err = uuid.Parse(addr); err != nil {
			return nil, fmt.Errorf("tx_output %d address: %w", out.TxID, err)
		}
		if out.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("tx_output %d amount: %w", out.TxID, err)
		}
		result = append(result, &out)
	}
	return result, rows.Err()
}

// LoadTransactions returns all transactions rows ordered by tx_id.
func (s *LedgerSource) LoadTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tx_id, block_id FROM transactions ORDER BY tx_id`)
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
	rows, err := s.db.QueryContext(ctx, `SELECT block_id, time FROM blocks ORDER BY block_id`)
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

// InsertInputs adds inputs in one transaction. Fails entire batch on duplicate (tx_id, input_index).
func (s *LedgerSource) InsertInputs(ctx context.Context, inputs []*domain.TxInput) error {
	return s.insert(ctx, `INSERT INTO tx_inputs (tx_id, prevout_tx_id, input_index) VALUES (?, ?, ?)`, len(inputs),
		func(i int) []any { return []any{inputs[i].TxID, inputs[i].PrevoutTxID, inputs[i].InputIndex} })
}

// InsertOutputs adds outputs in one transaction.
func (s *LedgerSource) InsertOutputs(ctx context.Context, outputs []*domain.TxOutput) error {
	return s.insert(ctx, `INSERT INTO tx_outputs (tx_id, address, amount, is_spent) VALUES (?, CAST(? AS UUID), CAST(? AS DECIMAL(38,18)), ?)`, len(outputs),
		func(i int) []any {
			o := outputs[i]
			return []any{o.TxID, o.Address.String(), o.Amount.String(), o.IsSpent}
		})
}

// InsertTransactions adds transactions in one transaction. Fails entire batch on duplicate tx_id.
func (s *LedgerSource) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	return s.insert(ctx, `INSERT INTO transactions (tx_id, block_id) VALUES (?, ?)`, len(txs),
		func(i int) []any { return []any{txs[i].TxID, txs[i].BlockID} })
}

// InsertBlocks adds blocks in one transaction. Fails entire batch on duplicate block_id.
func (s *LedgerSource) InsertBlocks(ctx context.Context, blocks []*domain.Block) error {
	return s.insert(ctx, `INSERT INTO blocks (block_id, time) VALUES (?, ?)`, len(blocks),
		func(i int) []any { return []any{blocks[i].BlockID, blocks[i].Time.UTC()} })
}

func (s *LedgerSource) insert(ctx context.Context, query string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isDuplicateKeyError matches DuckDB's primary key constraint message.
func isDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate key")
}

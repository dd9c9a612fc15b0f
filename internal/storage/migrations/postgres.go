package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"entity-cluster-lab/internal/storage/postgres"
)

const createPostgresVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunPostgresMigrations applies embedded SQL files not yet recorded in
// schema_migrations, each in its own transaction. Returns the applied names.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, createPostgresVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []string
	for _, m := range files {
		done, err := applyPostgres(ctx, pool, m)
		if err != nil {
			return applied, err
		}
		if done {
			applied = append(applied, m.Name)
		}
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, m migration) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, m.Name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.Name, err)
	}
	if exists {
		return false, nil
	}

	// Simple protocol allows multiple statements per file.
	if _, err := tx.Exec(ctx, m.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return true, nil
}

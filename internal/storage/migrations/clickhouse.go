package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "entity-cluster-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database if missing and applies
// every embedded statement. Statements use IF NOT EXISTS, so reruns are no-ops.
// Returns a connection to the target database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "default")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	for _, m := range files {
		stmts, err := splitStatements(m.SQL)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("split migration %s: %w", m.Name, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
	}

	return conn, nil
}

// splitStatements splits a file on semicolons outside single-quoted literals.
// The driver executes one statement per call. Lines starting with -- are dropped.
func splitStatements(input string) ([]string, error) {
	var (
		stmts    []string
		cur      strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(input, "\n") {
		if !inString && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\'' && inString && i+1 < len(line) && line[i+1] == '\'':
				cur.WriteString("''")
				i++
			case ch == '\'':
				inString = !inString
				cur.WriteByte(ch)
			case ch == ';' && !inString:
				flush()
			default:
				cur.WriteByte(ch)
			}
		}
		cur.WriteByte('\n')
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}

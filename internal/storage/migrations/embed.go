// Package migrations embeds and applies the SQL schema of every backend.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// PostgresFS embeds the ledger and output schema for PostgreSQL.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the output schema for ClickHouse.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// migration is one embedded SQL file.
type migration struct {
	Name string
	SQL  string
}

// load returns the non-empty .sql files of dir in lexical order.
func load(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, migration{Name: name, SQL: string(data)})
	}
	return out, nil
}

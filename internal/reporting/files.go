package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"entity-cluster-lab/internal/domain"
)

// Output file names.
const (
	EntityRecordsFile = "entity_records.csv"
	RelationshipsFile = "entity_relationships.csv"
	ReportFile        = "report.md"
)

// WriteFiles writes the CSV exports and the Markdown report into dir and
// returns the written paths.
func WriteFiles(dir string, r *Report, records []*domain.EntityRecord, rels []*domain.EntityRelationship) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{EntityRecordsFile, RenderEntityCSV(records)},
		{RelationshipsFile, RenderRelationshipCSV(rels)},
		{ReportFile, RenderMarkdown(r)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

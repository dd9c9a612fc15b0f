package reporting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage/memory"
)

func setupTestData(t *testing.T) (*memory.EntityRecordStore, *memory.RelationshipStore) {
	ctx := context.Background()

	recordStore := memory.NewEntityRecordStore()
	relStore := memory.NewRelationshipStore()

	records := []*domain.EntityRecord{
		{
			EntityID:     1,
			Addresses:    []uuid.UUID{uuid.New(), uuid.New()},
			FeatureStats: domain.FeatureStats{NumTransactions: 3, TotalVolume: 50},
			EntityType:   domain.EntityTypeExchange,
		},
		{
			EntityID:     2,
			Addresses:    []uuid.UUID{uuid.New()},
			FeatureStats: domain.FeatureStats{NumTransactions: 1, TotalVolume: 80},
			EntityType:   domain.EntityTypeIndividual,
			InDegree:     1,
		},
		{
			EntityID:     3,
			Addresses:    []uuid.UUID{uuid.New()},
			FeatureStats: domain.FeatureStats{NumTransactions: 1, TotalVolume: 50},
			EntityType:   domain.EntityTypeIndividual,
		},
	}
	if err := recordStore.InsertBulk(ctx, records); err != nil {
		t.Fatalf("Insert records failed: %v", err)
	}

	rels := []*domain.EntityRelationship{
		{SourceEntity: 1, TargetEntity: 1, InteractionCount: 1, TotalFlow: 5, AvgFlow: 5},
		{SourceEntity: 1, TargetEntity: 2, InteractionCount: 2, TotalFlow: 20, AvgFlow: 10},
		{SourceEntity: 3, TargetEntity: 2, InteractionCount: 1, TotalFlow: 20, AvgFlow: 20},
	}
	if err := relStore.InsertBulk(ctx, rels); err != nil {
		t.Fatalf("Insert relationships failed: %v", err)
	}

	return recordStore, relStore
}

func TestGenerator_Generate(t *testing.T) {
	recordStore, relStore := setupTestData(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	report, err := NewGenerator(recordStore, relStore).
		WithClock(func() time.Time { return fixed }).
		WithTopN(2).
		Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !report.GeneratedAt.Equal(fixed) {
		t.Errorf("expected injected clock, got %v", report.GeneratedAt)
	}

	s := report.Summary
	if s.Entities != 3 || s.Addresses != 4 || s.Relationships != 3 || s.SelfLoops != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.TotalVolume != 180 || s.TotalFlow != 45 {
		t.Errorf("unexpected totals: %+v", s)
	}

	if len(report.TypeCounts) != len(domain.AllEntityTypes) {
		t.Fatalf("expected a row per label, got %d", len(report.TypeCounts))
	}
	for _, c := range report.TypeCounts {
		switch domain.EntityType(c.EntityType) {
		case domain.EntityTypeIndividual:
			if c.Count != 2 {
				t.Errorf("expected 2 individuals, got %d", c.Count)
			}
		case domain.EntityTypeExchange:
			if c.Count != 1 {
				t.Errorf("expected 1 exchange, got %d", c.Count)
			}
		default:
			if c.Count != 0 {
				t.Errorf("expected 0 %s, got %d", c.EntityType, c.Count)
			}
		}
	}

	// volume ties break by entity id
	if len(report.TopEntities) != 2 || report.TopEntities[0].EntityID != 2 || report.TopEntities[1].EntityID != 1 {
		t.Errorf("unexpected top entities: %+v", report.TopEntities)
	}
	// flow ties break by (source, target)
	if len(report.TopFlows) != 2 || report.TopFlows[0].SourceEntity != 1 || report.TopFlows[1].SourceEntity != 3 {
		t.Errorf("unexpected top flows: %+v", report.TopFlows)
	}
}

func TestRenderMarkdown(t *testing.T) {
	recordStore, relStore := setupTestData(t)

	report, err := NewGenerator(recordStore, relStore).
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }).
		Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Entity Clustering Report",
		"Generated: 2024-05-01T00:00:00Z",
		"| Entities | 3 |",
		"| Exchange | 1 | 33.33% |",
		"| 1 | 2 | 2 | 20.0000 | 10.0000 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(&Report{TypeCounts: typeCounts(nil)})
	if !strings.Contains(md, "No entities available.") || !strings.Contains(md, "No relationships available.") {
		t.Error("expected empty-table placeholders")
	}
}

func TestRenderEntityCSV_AbsentValues(t *testing.T) {
	ratio := 0.5
	bh := 4
	addr := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	records := []*domain.EntityRecord{
		{
			EntityID:         7,
			Addresses:        []uuid.UUID{addr},
			FeatureStats:     domain.FeatureStats{NumEdges: 2, TotalVolume: 1.5, IORatio: &ratio},
			BusinessHoursTxs: &bh,
			EntityType:       domain.EntityTypeIndividual,
		},
	}

	csv := RenderEntityCSV(records)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}

	header := strings.Split(lines[0], ",")
	row := strings.Split(lines[1], ",")
	if len(header) != len(row) {
		t.Fatalf("row has %d cells, header has %d", len(row), len(header))
	}

	cell := make(map[string]string, len(header))
	for i, h := range header {
		cell[h] = row[i]
	}

	tests := map[string]string{
		"entity_id":            "7",
		"entity_type":          "Individual",
		"addresses":            addr.String(),
		"total_volume":         "1.500000",
		"io_ratio":             "0.500000",
		"spent_ratio":          "",
		"std_transaction_size": "",
		"first_seen":           "",
		"business_hours_txs":   "4",
		"peak_tx_rate":         "",
	}
	for col, want := range tests {
		if cell[col] != want {
			t.Errorf("%s: expected %q, got %q", col, want, cell[col])
		}
	}
}

func TestRenderRelationshipCSV(t *testing.T) {
	csv := RenderRelationshipCSV([]*domain.EntityRelationship{
		{SourceEntity: 1, TargetEntity: 2, InteractionCount: 3, TotalFlow: 6, AvgFlow: 2},
	})
	want := "source_entity,target_entity,interaction_count,total_flow,avg_flow\n1,2,3,6.000000,2.000000\n"
	if csv != want {
		t.Errorf("unexpected csv:\n%s", csv)
	}
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := WriteFiles(dir, &Report{}, nil, nil)
	if err != nil {
		t.Fatalf("WriteFiles failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 files, got %d", len(paths))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}

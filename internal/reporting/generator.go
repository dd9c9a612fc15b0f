package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/storage"
)

// DefaultTopN bounds the top entities and top flows tables.
const DefaultTopN = 10

// Generator produces reports from stored pipeline output.
type Generator struct {
	recordStore       storage.EntityRecordStore
	relationshipStore storage.RelationshipStore
	topN              int
	now               func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(recordStore storage.EntityRecordStore, relationshipStore storage.RelationshipStore) *Generator {
	return &Generator{
		recordStore:       recordStore,
		relationshipStore: relationshipStore,
		topN:              DefaultTopN,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithTopN sets the size of the top tables.
func (g *Generator) WithTopN(n int) *Generator {
	g.topN = n
	return g
}

// Generate builds a Report from everything in the stores.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	records, err := g.recordStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entity records: %w", err)
	}
	rels, err := g.relationshipStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	return &Report{
		GeneratedAt: g.now(),
		Summary:     summarize(records, rels),
		TypeCounts:  typeCounts(records),
		TopEntities: g.topEntities(records),
		TopFlows:    g.topFlows(rels),
	}, nil
}

func summarize(records []*domain.EntityRecord, rels []*domain.EntityRelationship) Summary {
	s := Summary{
		Entities:      len(records),
		Relationships: len(rels),
	}
	for _, r := range records {
		s.Addresses += len(r.Addresses)
		s.TotalVolume += r.TotalVolume
	}
	for _, r := range rels {
		if r.IsSelfLoop() {
			s.SelfLoops++
		}
		s.TotalFlow += r.TotalFlow
	}
	return s
}

func typeCounts(records []*domain.EntityRecord) []TypeCountRow {
	counts := make(map[domain.EntityType]int)
	for _, r := range records {
		counts[r.EntityType]++
	}

	rows := make([]TypeCountRow, 0, len(domain.AllEntityTypes))
	for _, et := range domain.AllEntityTypes {
		row := TypeCountRow{EntityType: string(et), Count: counts[et]}
		if len(records) > 0 {
			row.Share = float64(row.Count) / float64(len(records))
		}
		rows = append(rows, row)
	}
	return rows
}

func (g *Generator) topEntities(records []*domain.EntityRecord) []EntityRow {
	sorted := make([]*domain.EntityRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalVolume != sorted[j].TotalVolume {
			return sorted[i].TotalVolume > sorted[j].TotalVolume
		}
		return sorted[i].EntityID < sorted[j].EntityID
	})
	if len(sorted) > g.topN {
		sorted = sorted[:g.topN]
	}

	rows := make([]EntityRow, len(sorted))
	for i, r := range sorted {
		rows[i] = EntityRow{
			EntityID:        r.EntityID,
			EntityType:      string(r.EntityType),
			Addresses:       len(r.Addresses),
			NumTransactions: r.NumTransactions,
			TotalVolume:     r.TotalVolume,
			InDegree:        r.InDegree,
			OutDegree:       r.OutDegree,
		}
	}
	return rows
}

func (g *Generator) topFlows(rels []*domain.EntityRelationship) []FlowRow {
	sorted := make([]*domain.EntityRelationship, len(rels))
	copy(sorted, rels)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalFlow != sorted[j].TotalFlow {
			return sorted[i].TotalFlow > sorted[j].TotalFlow
		}
		if sorted[i].SourceEntity != sorted[j].SourceEntity {
			return sorted[i].SourceEntity < sorted[j].SourceEntity
		}
		return sorted[i].TargetEntity < sorted[j].TargetEntity
	})
	if len(sorted) > g.topN {
		sorted = sorted[:g.topN]
	}

	rows := make([]FlowRow, len(sorted))
	for i, r := range sorted {
		rows[i] = FlowRow{
			SourceEntity:     r.SourceEntity,
			TargetEntity:     r.TargetEntity,
			InteractionCount: r.InteractionCount,
			TotalFlow:        r.TotalFlow,
			AvgFlow:          r.AvgFlow,
		}
	}
	return rows
}

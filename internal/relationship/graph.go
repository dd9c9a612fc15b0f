// Package relationship builds the directed entity-to-entity flow graph.
package relationship

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/features"
	"entity-cluster-lab/internal/ledger"
	"entity-cluster-lab/internal/parallel"
)

// Builder derives EntityRelationship edges from the address-to-entity mapping.
type Builder struct {
	dropSelfLoops bool
	workers       int
}

// NewBuilder creates a Builder. Self-loops are kept unless dropSelfLoops is set.
func NewBuilder(dropSelfLoops bool, workers int) *Builder {
	return &Builder{dropSelfLoops: dropSelfLoops, workers: workers}
}

type flowAcc struct {
	count int
	sum   decimal.Decimal
}

// Build emits one relationship per (source, target) entity pair.
//
// For every address A owned by source entity e1, every output paying A
// whose transaction is spent by a transaction that is itself an entity id
// e2 counts as one interaction of amount equal to the output amount.
// Relationships are ordered by (SourceEntity, TargetEntity).
func (b *Builder) Build(ctx context.Context, snap *ledger.Snapshot, feats []*domain.EntityFeature) ([]*domain.EntityRelationship, error) {
	owned := make(map[int64][]uuid.UUID)
	for _, f := range feats {
		owned[f.EntityID] = append(owned[f.EntityID], f.Address)
	}

	sources := make([]int64, 0, len(owned))
	for id, addrs := range owned {
		sources = append(sources, id)
		features.SortAddresses(addrs)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	perSource, err := parallel.Map(ctx, b.workers, sources, func(_ context.Context, source int64) ([]*domain.EntityRelationship, error) {
		return b.outgoing(snap, source, owned[source], owned), nil
	})
	if err != nil {
		return nil, err
	}

	var rels []*domain.EntityRelationship
	for _, r := range perSource {
		rels = append(rels, r...)
	}
	return rels, nil
}

func (b *Builder) outgoing(snap *ledger.Snapshot, source int64, addrs []uuid.UUID, roots map[int64][]uuid.UUID) []*domain.EntityRelationship {
	accs := make(map[int64]*flowAcc)

	for _, addr := range addrs {
		for _, out := range snap.OutputsByAddress(addr) {
			for _, spender := range snap.Spenders(out.TxID) {
				if _, ok := roots[spender]; !ok {
					continue
				}
				if b.dropSelfLoops && spender == source {
					continue
				}
				acc, ok := accs[spender]
				if !ok {
					acc = &flowAcc{}
					accs[spender] = acc
				}
				acc.count++
				acc.sum = acc.sum.Add(out.Amount)
			}
		}
	}

	targets := make([]int64, 0, len(accs))
	for t := range accs {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	rels := make([]*domain.EntityRelationship, 0, len(targets))
	for _, t := range targets {
		acc := accs[t]
		rels = append(rels, &domain.EntityRelationship{
			SourceEntity:     source,
			TargetEntity:     t,
			InteractionCount: acc.count,
			TotalFlow:        acc.sum.InexactFloat64(),
			AvgFlow:          acc.sum.Div(decimal.NewFromInt(int64(acc.count))).InexactFloat64(),
		})
	}
	return rels
}

// Flow holds the graph-derived columns of one entity.
type Flow struct {
	OutDegree    int
	InDegree     int
	TotalOutflow float64
	TotalInflow  float64
}

// Flows derives degrees and total flows per entity from the relationship set.
// Entities absent from the result have zero degree and flow.
func Flows(rels []*domain.EntityRelationship) map[int64]Flow {
	out := make(map[int64]decimal.Decimal)
	in := make(map[int64]decimal.Decimal)
	flows := make(map[int64]Flow)

	for _, r := range rels {
		src := flows[r.SourceEntity]
		src.OutDegree++
		flows[r.SourceEntity] = src
		out[r.SourceEntity] = out[r.SourceEntity].Add(decimal.NewFromFloat(r.TotalFlow))

		dst := flows[r.TargetEntity]
		dst.InDegree++
		flows[r.TargetEntity] = dst
		in[r.TargetEntity] = in[r.TargetEntity].Add(decimal.NewFromFloat(r.TotalFlow))
	}

	for id, f := range flows {
		f.TotalOutflow = out[id].InexactFloat64()
		f.TotalInflow = in[id].InexactFloat64()
		flows[id] = f
	}
	return flows
}

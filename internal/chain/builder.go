// Package chain grows bounded-depth ancestry chains over the spend graph.
package chain

import (
	"context"
	"sort"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/ledger"
	"entity-cluster-lab/internal/parallel"
)

// Builder produces ChainEdge rows by frontier expansion from seed transactions.
//
// Each seed is expanded one hop per level. Level 1 emits an edge for every
// non-coinbase input of the seed, crossed with every output of the seed.
// Level n+1 expands the distinct ancestors reached at level n the same way,
// keeping StartTx fixed. Expansion stops after MaxDepth additional hops or
// when no non-coinbase ancestor remains.
type Builder struct {
	maxDepth int
	workers  int
}

// NewBuilder creates a Builder. maxDepth is the number of hops followed beyond
// the seed edge, so ChainLength never exceeds maxDepth+1.
func NewBuilder(maxDepth, workers int) *Builder {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Builder{maxDepth: maxDepth, workers: workers}
}

// MaxChainLength is the largest ChainLength the builder can emit.
func (b *Builder) MaxChainLength() int {
	return b.maxDepth + 1
}

// Build grows chains from seeds. A nil seeds slice means every transaction in
// the snapshot with a non-coinbase input. Seeds are independent, so callers may
// split them into partitions and concatenate the results.
// Edges are ordered by seed ascending, then by traversal order.
func (b *Builder) Build(ctx context.Context, snap *ledger.Snapshot, seeds []int64) ([]*domain.ChainEdge, error) {
	if seeds == nil {
		seeds = snap.Seeds()
	} else {
		seeds = append([]int64(nil), seeds...)
		sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	}

	perSeed, err := parallel.Map(ctx, b.workers, seeds, func(_ context.Context, seed int64) ([]*domain.ChainEdge, error) {
		return b.buildSeed(snap, seed), nil
	})
	if err != nil {
		return nil, err
	}

	total := 0
	for _, edges := range perSeed {
		total += len(edges)
	}
	all := make([]*domain.ChainEdge, 0, total)
	for _, edges := range perSeed {
		all = append(all, edges...)
	}
	return all, nil
}

// buildSeed expands a single seed level by level.
func (b *Builder) buildSeed(snap *ledger.Snapshot, seed int64) []*domain.ChainEdge {
	var edges []*domain.ChainEdge

	frontier := []int64{seed}
	for length := 1; length <= b.MaxChainLength() && len(frontier) > 0; length++ {
		next := make(map[int64]struct{})

		for _, current := range frontier {
			outputs := snap.Outputs(current)
			if len(outputs) == 0 {
				continue
			}
			blockID, blockTime := snap.BlockOf(current)

			for _, in := range snap.Inputs(current) {
				if in.IsCoinbase() {
					continue
				}
				for _, out := range outputs {
					edges = append(edges, &domain.ChainEdge{
						StartTx:     seed,
						CurrentTx:   current,
						PrevTx:      in.PrevoutTxID,
						InputIndex:  in.InputIndex,
						Address:     out.Address,
						Amount:      out.Amount,
						IsSpent:     out.IsSpent,
						BlockID:     blockID,
						Time:        blockTime,
						ChainLength: length,
					})
				}
				next[in.PrevoutTxID] = struct{}{}
			}
		}

		frontier = sortedKeys(next)
	}

	return edges
}

func sortedKeys(set map[int64]struct{}) []int64 {
	keys := make([]int64, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

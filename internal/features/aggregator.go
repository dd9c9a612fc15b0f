package features

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/parallel"
)

// Aggregator builds one EntityFeature per address touched by chain edges.
type Aggregator struct {
	mode    string
	workers int
}

// NewAggregator creates an Aggregator for the given stats mode.
func NewAggregator(mode string, workers int) *Aggregator {
	return &Aggregator{mode: mode, workers: workers}
}

// Aggregate groups edges by address and computes FeatureStats per group.
// EntityID is the smallest StartTx among the group's edges.
// Features are returned ordered by address bytes.
func (a *Aggregator) Aggregate(ctx context.Context, edges []*domain.ChainEdge) ([]*domain.EntityFeature, error) {
	addrs, groups := GroupByAddress(edges)

	return parallel.Map(ctx, a.workers, addrs, func(_ context.Context, addr uuid.UUID) (*domain.EntityFeature, error) {
		group := groups[addr]
		return &domain.EntityFeature{
			EntityID:     minStart(group),
			Address:      addr,
			FeatureStats: ComputeStats(group, a.mode),
		}, nil
	})
}

// EntityIndex maps every address to its entity id.
func EntityIndex(features []*domain.EntityFeature) map[uuid.UUID]int64 {
	idx := make(map[uuid.UUID]int64, len(features))
	for _, f := range features {
		idx[f.Address] = f.EntityID
	}
	return idx
}

// GroupByAddress partitions edges by address. Keys are sorted by address bytes.
func GroupByAddress(edges []*domain.ChainEdge) ([]uuid.UUID, map[uuid.UUID][]*domain.ChainEdge) {
	groups := make(map[uuid.UUID][]*domain.ChainEdge)
	for _, e := range edges {
		groups[e.Address] = append(groups[e.Address], e)
	}

	keys := make([]uuid.UUID, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	SortAddresses(keys)
	return keys, groups
}

// GroupByStart partitions edges by chain root. Keys are ascending.
func GroupByStart(edges []*domain.ChainEdge) ([]int64, map[int64][]*domain.ChainEdge) {
	groups := make(map[int64][]*domain.ChainEdge)
	for _, e := range edges {
		groups[e.StartTx] = append(groups[e.StartTx], e)
	}

	keys := make([]int64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, groups
}

// SortAddresses orders addresses by their byte representation.
func SortAddresses(addrs []uuid.UUID) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}

func minStart(edges []*domain.ChainEdge) int64 {
	id := edges[0].StartTx
	for _, e := range edges[1:] {
		if e.StartTx < id {
			id = e.StartTx
		}
	}
	return id
}

// Package features computes per-address, per-root and per-entity statistics
// over chain edges.
package features

import (
	"bytes"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"entity-cluster-lab/internal/config"
	"entity-cluster-lab/internal/domain"
)

type outputKey struct {
	tx   int64
	addr [16]byte
}

// ComputeStats summarizes a group of edges. The group must be non-empty.
//
// In two_pass mode amounts are sorted once: the median is read from the
// sorted slice and mean/variance are computed over it in ascending order.
// In streaming mode mean and variance come from a single Welford pass in
// canonical edge order and MedianTxSize is nil.
// Volume and balance sums are exact decimal sums converted at the end.
func ComputeStats(edges []*domain.ChainEdge, mode string) domain.FeatureStats {
	n := len(edges)
	if n == 0 {
		return domain.FeatureStats{}
	}

	sorted := canonicalEdges(edges)

	txs := make(map[int64]struct{})
	starts := make(map[int64]struct{})
	positions := make(map[int32]struct{})
	blocks := make(map[int64]struct{})
	prevs := make(map[int64]struct{})
	outputs := make(map[outputKey]struct{})

	var (
		total, spent, unspent decimal.Decimal
		spentEdges            int
		maxLen                int
		first, last           *time.Time
	)

	for _, e := range sorted {
		txs[e.CurrentTx] = struct{}{}
		starts[e.StartTx] = struct{}{}
		positions[e.InputIndex] = struct{}{}
		prevs[e.PrevTx] = struct{}{}
		outputs[outputKey{tx: e.CurrentTx, addr: e.Address}] = struct{}{}
		if e.BlockID != nil {
			blocks[*e.BlockID] = struct{}{}
		}
		if e.ChainLength > maxLen {
			maxLen = e.ChainLength
		}

		total = total.Add(e.Amount)
		if e.IsSpent {
			spent = spent.Add(e.Amount)
			spentEdges++
		} else {
			unspent = unspent.Add(e.Amount)
		}

		if e.Time != nil {
			if first == nil || e.Time.Before(*first) {
				t := *e.Time
				first = &t
			}
			if last == nil || e.Time.After(*last) {
				t := *e.Time
				last = &t
			}
		}
	}

	stats := domain.FeatureStats{
		NumTransactions:     len(txs),
		NumEdges:            n,
		NumChains:           len(starts),
		MaxChainLength:      maxLen,
		PositionalDiversity: len(positions),
		NumBlocks:           len(blocks),
		TotalVolume:         total.InexactFloat64(),
		UniqueInputs:        len(prevs),
		UniqueOutputs:       len(outputs),
		UnspentBalance:      unspent.InexactFloat64(),
		SpentBalance:        spent.InexactFloat64(),
		SpentRatio:          ratio(spentEdges, n),
		IORatio:             ratio(len(prevs), n),
		FirstSeen:           first,
		LastSeen:            last,
	}

	amounts := make([]float64, n)
	for i, e := range sorted {
		amounts[i] = e.Amount.InexactFloat64()
	}

	var mean, m2 float64
	if mode == config.StatsModeStreaming {
		mean, m2 = welford(amounts)
		stats.MinTransactionSize, stats.MaxTransactionSize = minMax(amounts)
	} else {
		sort.Float64s(amounts)
		mean = computeMean(amounts)
		m2 = sumSquaredDiffs(amounts, mean)
		stats.MinTransactionSize = amounts[0]
		stats.MaxTransactionSize = amounts[n-1]
		median := computePercentile(amounts, 0.50)
		stats.MedianTxSize = &median
	}

	stats.AvgTransactionSize = mean
	stats.VarianceTxSize = m2 / float64(n)
	if n >= 2 {
		std := math.Sqrt(m2 / float64(n-1))
		stats.StdTransactionSize = &std
	}

	if stats.NumTransactions > 0 {
		v := total.Div(decimal.NewFromInt(int64(stats.NumTransactions))).InexactFloat64()
		stats.AvgValuePerTx = &v
	}

	if first != nil && last != nil {
		span := last.Sub(*first).Seconds()
		if span > 0 {
			density := float64(stats.NumBlocks) / span
			stats.ActivityDensity = &density
		}
	}

	return stats
}

// canonicalEdges returns a copy of edges in a stable total order so that
// float accumulation does not depend on how the group was assembled.
func canonicalEdges(edges []*domain.ChainEdge) []*domain.ChainEdge {
	sorted := make([]*domain.ChainEdge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.StartTx != b.StartTx {
			return a.StartTx < b.StartTx
		}
		if a.ChainLength != b.ChainLength {
			return a.ChainLength < b.ChainLength
		}
		if a.CurrentTx != b.CurrentTx {
			return a.CurrentTx < b.CurrentTx
		}
		if a.InputIndex != b.InputIndex {
			return a.InputIndex < b.InputIndex
		}
		if a.PrevTx != b.PrevTx {
			return a.PrevTx < b.PrevTx
		}
		if c := bytes.Compare(a.Address[:], b.Address[:]); c != 0 {
			return c < 0
		}
		return a.Amount.LessThan(b.Amount)
	})
	return sorted
}

// ratio returns num/den, or nil when den is zero.
func ratio(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	r := float64(num) / float64(den)
	return &r
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sumSquaredDiffs returns the sum of squared deviations from mean.
func sumSquaredDiffs(values []float64, mean float64) float64 {
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq
}

// welford returns the running mean and sum of squared deviations.
func welford(values []float64) (mean, m2 float64) {
	for i, v := range values {
		delta := v - mean
		mean += delta / float64(i+1)
		m2 += delta * (v - mean)
	}
	return mean, m2
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

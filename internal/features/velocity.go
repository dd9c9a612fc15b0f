package features

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/parallel"
)

// VelocityAnalyzer derives hourly activity rates per chain root.
type VelocityAnalyzer struct {
	workers int
}

// NewVelocityAnalyzer creates a VelocityAnalyzer.
func NewVelocityAnalyzer(workers int) *VelocityAnalyzer {
	return &VelocityAnalyzer{workers: workers}
}

// hourBucket is one (start_tx, hour) cell.
type hourBucket struct {
	hour   time.Time
	count  int
	volume decimal.Decimal
}

// Analyze buckets edges by (StartTx, hour) and reduces the buckets per root.
// Only non-empty buckets count; edges without a time are skipped. Roots with
// no timed edges have no profile. Profiles are ordered by StartTx.
func (v *VelocityAnalyzer) Analyze(ctx context.Context, edges []*domain.ChainEdge) ([]*domain.VelocityProfile, error) {
	starts, groups := GroupByStart(edges)

	profiles, err := parallel.Map(ctx, v.workers, starts, func(_ context.Context, start int64) (*domain.VelocityProfile, error) {
		return velocityProfile(start, hourlyBuckets(groups[start])), nil
	})
	if err != nil {
		return nil, err
	}

	out := profiles[:0]
	for _, p := range profiles {
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// hourlyBuckets aggregates edges into hour buckets sorted by hour.
func hourlyBuckets(edges []*domain.ChainEdge) []*hourBucket {
	buckets := make(map[int64]*hourBucket)
	for _, e := range edges {
		hour, ok := e.HourBucket()
		if !ok {
			continue
		}
		b, ok := buckets[hour.Unix()]
		if !ok {
			b = &hourBucket{hour: hour}
			buckets[hour.Unix()] = b
		}
		b.count++
		b.volume = b.volume.Add(e.Amount)
	}

	result := make([]*hourBucket, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].hour.Before(result[j].hour)
	})
	return result
}

func velocityProfile(start int64, buckets []*hourBucket) *domain.VelocityProfile {
	if len(buckets) == 0 {
		return nil
	}

	var (
		peakCount   int
		totalCount  int
		peakVolume  decimal.Decimal
		totalVolume decimal.Decimal
	)
	for i, b := range buckets {
		totalCount += b.count
		totalVolume = totalVolume.Add(b.volume)
		if b.count > peakCount {
			peakCount = b.count
		}
		if i == 0 || b.volume.GreaterThan(peakVolume) {
			peakVolume = b.volume
		}
	}

	hours := decimal.NewFromInt(int64(len(buckets)))
	return &domain.VelocityProfile{
		EntityID:       start,
		ActiveHours:    len(buckets),
		PeakTxRate:     peakCount,
		AvgTxRate:      float64(totalCount) / float64(len(buckets)),
		PeakVolumeRate: peakVolume.InexactFloat64(),
		AvgVolumeRate:  totalVolume.Div(hours).InexactFloat64(),
	}
}

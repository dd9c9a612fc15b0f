package features

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entity-cluster-lab/internal/config"
	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/parallel"
)

// BehavioralAnalyzer derives per-root behavior ratios from chain edges.
type BehavioralAnalyzer struct {
	large    decimal.Decimal
	micro    decimal.Decimal
	hourFrom int
	hourTo   int
	loc      *time.Location
	workers  int
}

// NewBehavioralAnalyzer creates an analyzer from analysis config.
func NewBehavioralAnalyzer(cfg config.AnalysisConfig, workers int) (*BehavioralAnalyzer, error) {
	loc, err := cfg.BusinessHours.Location()
	if err != nil {
		return nil, err
	}
	return &BehavioralAnalyzer{
		large:    decimal.NewFromFloat(cfg.LargeTxThreshold),
		micro:    decimal.NewFromFloat(cfg.MicroTxThreshold),
		hourFrom: cfg.BusinessHours.Start,
		hourTo:   cfg.BusinessHours.End,
		loc:      loc,
		workers:  workers,
	}, nil
}

// Analyze returns one profile per StartTx, ascending.
func (b *BehavioralAnalyzer) Analyze(ctx context.Context, edges []*domain.ChainEdge) ([]*domain.BehavioralProfile, error) {
	starts, groups := GroupByStart(edges)

	return parallel.Map(ctx, b.workers, starts, func(_ context.Context, start int64) (*domain.BehavioralProfile, error) {
		return b.profile(start, groups[start]), nil
	})
}

func (b *BehavioralAnalyzer) profile(start int64, edges []*domain.ChainEdge) *domain.BehavioralProfile {
	var business, large, micro int
	addrs := make(map[uuid.UUID]struct{})

	for _, e := range edges {
		addrs[e.Address] = struct{}{}
		if e.Amount.GreaterThan(b.large) {
			large++
		}
		if e.Amount.LessThan(b.micro) {
			micro++
		}
		if e.Time != nil {
			h := e.Time.In(b.loc).Hour()
			if h >= b.hourFrom && h <= b.hourTo {
				business++
			}
		}
	}

	n := len(edges)
	return &domain.BehavioralProfile{
		EntityID:          start,
		NumEdges:          n,
		BusinessHoursTxs:  business,
		LargeTxRatio:      ratio(large, n),
		MicroTxRatio:      ratio(micro, n),
		AddressReuseRatio: ratio(len(addrs), n),
	}
}

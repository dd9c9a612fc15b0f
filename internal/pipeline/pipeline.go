// Package pipeline runs the clustering stages over a ledger snapshot.
//
// Stage order: chains -> address features -> behavioral and velocity
// profiles -> relationships -> entity records. Each stage completes before
// any stage that consumes its output starts.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"entity-cluster-lab/internal/chain"
	"entity-cluster-lab/internal/classifier"
	"entity-cluster-lab/internal/config"
	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/features"
	"entity-cluster-lab/internal/ledger"
	"entity-cluster-lab/internal/observability"
	"entity-cluster-lab/internal/parallel"
	"entity-cluster-lab/internal/relationship"
)

// Stage names used in logs and metrics.
const (
	StageChains        = "chains"
	StageFeatures      = "features"
	StageBehavioral    = "behavioral"
	StageVelocity      = "velocity"
	StageRelationships = "relationships"
	StageRecords       = "records"
)

// Result holds every stage output of one run.
type Result struct {
	Edges         []*domain.ChainEdge
	Features      []*domain.EntityFeature
	Behavioral    []*domain.BehavioralProfile
	Velocity      []*domain.VelocityProfile
	Relationships []*domain.EntityRelationship
	Records       []*domain.EntityRecord
}

// Pipeline wires the stage implementations together.
type Pipeline struct {
	chains        *chain.Builder
	aggregator    *features.Aggregator
	behavioral    *features.BehavioralAnalyzer
	velocity      *features.VelocityAnalyzer
	relationships *relationship.Builder
	classifier    *classifier.Classifier

	statsMode string
	workers   int
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// Options for creating a Pipeline.
type Options struct {
	Config  config.Config
	Logger  *zap.Logger            // nop when nil
	Metrics *observability.Metrics // optional
}

// New builds a Pipeline from configuration.
func New(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	workers := cfg.WorkerCount()

	behavioral, err := features.NewBehavioralAnalyzer(cfg.Analysis, workers)
	if err != nil {
		return nil, fmt.Errorf("business hours timezone: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		chains:        chain.NewBuilder(cfg.Analysis.MaxChainDepth, workers),
		aggregator:    features.NewAggregator(cfg.Analysis.StatsMode, workers),
		behavioral:    behavioral,
		velocity:      features.NewVelocityAnalyzer(workers),
		relationships: relationship.NewBuilder(cfg.Analysis.DropSelfLoops, workers),
		classifier:    classifier.New(cfg.Classifier),
		statsMode:     cfg.Analysis.StatsMode,
		workers:       workers,
		logger:        logger,
		metrics:       opts.Metrics,
	}, nil
}

// Run executes every stage over snap. seeds restricts chain roots; nil means all.
func (p *Pipeline) Run(ctx context.Context, snap *ledger.Snapshot, seeds []int64) (*Result, error) {
	res := &Result{}

	if err := p.stage(StageChains, func() (n int, err error) {
		res.Edges, err = p.chains.Build(ctx, snap, seeds)
		return len(res.Edges), err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageFeatures, func() (n int, err error) {
		res.Features, err = p.aggregator.Aggregate(ctx, res.Edges)
		return len(res.Features), err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageBehavioral, func() (n int, err error) {
		res.Behavioral, err = p.behavioral.Analyze(ctx, res.Edges)
		return len(res.Behavioral), err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageVelocity, func() (n int, err error) {
		res.Velocity, err = p.velocity.Analyze(ctx, res.Edges)
		return len(res.Velocity), err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageRelationships, func() (n int, err error) {
		res.Relationships, err = p.relationships.Build(ctx, snap, res.Features)
		return len(res.Relationships), err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageRecords, func() (n int, err error) {
		res.Records, err = p.buildRecords(ctx, res)
		return len(res.Records), err
	}); err != nil {
		return nil, err
	}

	return res, nil
}

func (p *Pipeline) stage(name string, fn func() (int, error)) error {
	start := time.Now()
	rows, err := fn()
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Error("stage failed", zap.String("stage", name), zap.Error(err))
		return fmt.Errorf("stage %s: %w", name, err)
	}

	p.metrics.RecordStage(name, elapsed.Seconds(), rows)
	p.logger.Info("stage completed",
		zap.String("stage", name),
		zap.Int("rows", rows),
		zap.Duration("elapsed", elapsed))
	return nil
}

// buildRecords merges stage outputs into one classified record per entity.
// Records are ordered by EntityID.
func (p *Pipeline) buildRecords(ctx context.Context, res *Result) ([]*domain.EntityRecord, error) {
	addrsByEntity := make(map[int64][]uuid.UUID)
	var entities []int64
	for _, f := range res.Features {
		if _, ok := addrsByEntity[f.EntityID]; !ok {
			entities = append(entities, f.EntityID)
		}
		addrsByEntity[f.EntityID] = append(addrsByEntity[f.EntityID], f.Address)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })

	_, edgesByAddr := features.GroupByAddress(res.Edges)

	behavioral := make(map[int64]*domain.BehavioralProfile, len(res.Behavioral))
	for _, b := range res.Behavioral {
		behavioral[b.EntityID] = b
	}
	velocity := make(map[int64]*domain.VelocityProfile, len(res.Velocity))
	for _, v := range res.Velocity {
		velocity[v.EntityID] = v
	}
	flows := relationship.Flows(res.Relationships)

	return parallel.Map(ctx, p.workers, entities, func(_ context.Context, id int64) (*domain.EntityRecord, error) {
		addrs := append([]uuid.UUID(nil), addrsByEntity[id]...)
		features.SortAddresses(addrs)

		var edges []*domain.ChainEdge
		for _, a := range addrs {
			edges = append(edges, edgesByAddr[a]...)
		}

		rec := &domain.EntityRecord{
			EntityID:     id,
			Addresses:    addrs,
			FeatureStats: features.ComputeStats(edges, p.statsMode),
		}

		if b, ok := behavioral[id]; ok {
			bh := b.BusinessHoursTxs
			rec.BusinessHoursTxs = &bh
			rec.LargeTxRatio = b.LargeTxRatio
			rec.MicroTxRatio = b.MicroTxRatio
			rec.AddressReuseRatio = b.AddressReuseRatio
		}
		if v, ok := velocity[id]; ok {
			peak, avg, peakVol, avgVol := v.PeakTxRate, v.AvgTxRate, v.PeakVolumeRate, v.AvgVolumeRate
			rec.PeakTxRate = &peak
			rec.AvgTxRate = &avg
			rec.PeakVolumeRate = &peakVol
			rec.AvgVolumeRate = &avgVol
		}

		f := flows[id]
		rec.OutDegree = f.OutDegree
		rec.InDegree = f.InDegree
		rec.TotalOutflow = f.TotalOutflow
		rec.TotalInflow = f.TotalInflow

		rec.EntityType = p.classifier.Classify(rec)
		return rec, nil
	})
}

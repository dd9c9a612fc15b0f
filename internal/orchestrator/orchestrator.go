// Package orchestrator runs one end-to-end pipeline execution.
// It coordinates: snapshot load -> pipeline stages -> stores -> sinks -> reports
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"entity-cluster-lab/internal/config"
	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/ledger"
	"entity-cluster-lab/internal/observability"
	"entity-cluster-lab/internal/pipeline"
	"entity-cluster-lab/internal/reporting"
	"entity-cluster-lab/internal/storage"
)

// Publisher sends pipeline output to a downstream consumer.
type Publisher interface {
	PublishRecords(ctx context.Context, records []*domain.EntityRecord) error
	PublishRelationships(ctx context.Context, rels []*domain.EntityRelationship) error
}

// Orchestrator coordinates the E2E pipeline execution.
type Orchestrator struct {
	// Input
	source storage.LedgerSource

	// Outputs
	recordStore       storage.EntityRecordStore
	relationshipStore storage.RelationshipStore
	publisher         Publisher
	outputDir         string

	cfg     config.Config
	seeds   []int64
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Source            storage.LedgerSource
	RecordStore       storage.EntityRecordStore
	RelationshipStore storage.RelationshipStore

	// Optional outputs
	Publisher Publisher // nil disables publishing
	OutputDir string    // empty disables report files

	Config config.Config
	Seeds  []int64 // restrict chain roots; nil means all

	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time // report clock
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		source:            opts.Source,
		recordStore:       opts.RecordStore,
		relationshipStore: opts.RelationshipStore,
		publisher:         opts.Publisher,
		outputDir:         opts.OutputDir,
		cfg:               opts.Config,
		seeds:             opts.Seeds,
		logger:            logger.Named("orchestrator"),
		metrics:           opts.Metrics,
		now:               now,
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Edges         int
	Addresses     int
	Entities      int
	Relationships int
	TypeCounts    map[domain.EntityType]int
	ReportFiles   []string
}

// Run executes the full pipeline.
// Phases:
//  1. Validate schema and load the ledger snapshot
//  2. Run the clustering stages
//  3. Persist records and relationships
//  4. Publish to the downstream sink
//  5. Write reports
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result, err := o.run(ctx)
	status := "success"
	if err != nil {
		status = "failure"
	}
	o.metrics.RecordRun(status, float64(o.now().Unix()))
	return result, err
}

func (o *Orchestrator) run(ctx context.Context) (*RunResult, error) {
	// Phase 1: Load snapshot
	o.logger.Info("loading ledger snapshot")
	snap, err := ledger.Load(ctx, o.source)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load snapshot) failed: %w", err)
	}
	inputs, outputs, txs, blocks := snap.Stats()
	o.recordLedgerRows(inputs, outputs, txs, blocks)
	o.logger.Info("snapshot loaded",
		zap.Int("inputs", inputs),
		zap.Int("outputs", outputs),
		zap.Int("transactions", txs),
		zap.Int("blocks", blocks))

	// Phase 2: Pipeline
	p, err := pipeline.New(pipeline.Options{Config: o.cfg, Logger: o.logger, Metrics: o.metrics})
	if err != nil {
		return nil, fmt.Errorf("phase 2 (pipeline setup) failed: %w", err)
	}
	res, err := p.Run(ctx, snap, o.seeds)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (pipeline) failed: %w", err)
	}

	result := &RunResult{
		Edges:         len(res.Edges),
		Addresses:     len(res.Features),
		Entities:      len(res.Records),
		Relationships: len(res.Relationships),
		TypeCounts:    make(map[domain.EntityType]int),
	}
	for _, r := range res.Records {
		result.TypeCounts[r.EntityType]++
	}
	o.recordTypeCounts(result.TypeCounts)

	// Phase 3: Persist
	if err := o.write("entity_records", len(res.Records), func() error {
		return o.recordStore.InsertBulk(ctx, res.Records)
	}); err != nil {
		return nil, fmt.Errorf("phase 3 (persist records) failed: %w", err)
	}
	if err := o.write("entity_relationships", len(res.Relationships), func() error {
		return o.relationshipStore.InsertBulk(ctx, res.Relationships)
	}); err != nil {
		return nil, fmt.Errorf("phase 3 (persist relationships) failed: %w", err)
	}

	// Phase 4: Publish
	if o.publisher != nil {
		if err := o.write("kafka_records", len(res.Records), func() error {
			return o.publisher.PublishRecords(ctx, res.Records)
		}); err != nil {
			return nil, fmt.Errorf("phase 4 (publish records) failed: %w", err)
		}
		if err := o.write("kafka_relationships", len(res.Relationships), func() error {
			return o.publisher.PublishRelationships(ctx, res.Relationships)
		}); err != nil {
			return nil, fmt.Errorf("phase 4 (publish relationships) failed: %w", err)
		}
	}

	// Phase 5: Reports
	if o.outputDir != "" {
		report, err := reporting.NewGenerator(o.recordStore, o.relationshipStore).
			WithClock(o.now).
			Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("phase 5 (report) failed: %w", err)
		}
		files, err := reporting.WriteFiles(o.outputDir, report, res.Records, res.Relationships)
		if err != nil {
			return nil, fmt.Errorf("phase 5 (write reports) failed: %w", err)
		}
		result.ReportFiles = files
		o.logger.Info("reports written", zap.Strings("files", files))
	}

	o.logger.Info("pipeline completed",
		zap.Int("edges", result.Edges),
		zap.Int("addresses", result.Addresses),
		zap.Int("entities", result.Entities),
		zap.Int("relationships", result.Relationships))

	return result, nil
}

// write times one output operation and records it.
func (o *Orchestrator) write(target string, rows int, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.RecordWrite(target, time.Since(start).Seconds(), rows, err)
	if err != nil {
		o.logger.Error("write failed", zap.String("target", target), zap.Error(err))
		return err
	}
	o.logger.Debug("write completed", zap.String("target", target), zap.Int("rows", rows))
	return nil
}

func (o *Orchestrator) recordLedgerRows(inputs, outputs, txs, blocks int) {
	if o.metrics == nil {
		return
	}
	o.metrics.LedgerRows.WithLabelValues(storage.RelationTxInputs).Set(float64(inputs))
	o.metrics.LedgerRows.WithLabelValues(storage.RelationTxOutputs).Set(float64(outputs))
	o.metrics.LedgerRows.WithLabelValues(storage.RelationTransactions).Set(float64(txs))
	o.metrics.LedgerRows.WithLabelValues(storage.RelationBlocks).Set(float64(blocks))
}

func (o *Orchestrator) recordTypeCounts(counts map[domain.EntityType]int) {
	if o.metrics == nil {
		return
	}
	for _, et := range domain.AllEntityTypes {
		o.metrics.EntitiesByType.WithLabelValues(string(et)).Set(float64(counts[et]))
	}
}

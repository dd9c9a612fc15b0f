// Package main runs one entity clustering pass over a ledger snapshot.
// Executes: schema check → chains → features → classification → stores → sinks → reports
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"entity-cluster-lab/internal/config"
	"entity-cluster-lab/internal/domain"
	"entity-cluster-lab/internal/observability"
	"entity-cluster-lab/internal/orchestrator"
	"entity-cluster-lab/internal/pipeline"
	"entity-cluster-lab/internal/sink"
	"entity-cluster-lab/internal/storage"
	chstore "entity-cluster-lab/internal/storage/clickhouse"
	"entity-cluster-lab/internal/storage/duckdb"
	"entity-cluster-lab/internal/storage/memory"
	"entity-cluster-lab/internal/storage/migrations"
	"entity-cluster-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	source := flag.String("source", "", "Ledger source: memory, postgres or duckdb (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL DSN (overrides config)")
	duckdbPath := flag.String("duckdb-path", "", "DuckDB database file (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for output stores (overrides config)")
	outputDir := flag.String("output-dir", "", "Output directory for reports (overrides config)")
	kafkaBrokers := flag.String("kafka-brokers", "", "Comma-separated Kafka brokers (overrides config)")
	kafkaTopic := flag.String("kafka-topic", "", "Kafka topic (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics on this address until interrupted")
	seeds := flag.String("seeds", "", "Comma-separated chain root tx ids (default: all)")
	workers := flag.Int("workers", -1, "Worker count, 0 for GOMAXPROCS (overrides config)")
	demo := flag.Bool("demo", false, "Seed the source with the built-in demo ledger")
	migrate := flag.Bool("migrate", false, "Apply embedded migrations before running")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg, flagOverrides{
		source:        *source,
		postgresDSN:   *postgresDSN,
		duckdbPath:    *duckdbPath,
		clickhouseDSN: *clickhouseDSN,
		outputDir:     *outputDir,
		kafkaBrokers:  *kafkaBrokers,
		kafkaTopic:    *kafkaTopic,
		metricsAddr:   *metricsAddr,
		workers:       *workers,
		migrate:       *migrate,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	rootSeeds, err := parseSeeds(*seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -seeds: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, rootSeeds, *demo, logger); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}

type flagOverrides struct {
	source, postgresDSN, duckdbPath, clickhouseDSN string
	outputDir, kafkaBrokers, kafkaTopic            string
	metricsAddr                                    string
	workers                                        int
	migrate                                        bool
}

// applyFlags layers non-empty flags over the loaded config.
func applyFlags(cfg *config.Config, f flagOverrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Storage.Source, f.source)
	set(&cfg.Storage.PostgresDSN, f.postgresDSN)
	set(&cfg.Storage.DuckDBPath, f.duckdbPath)
	set(&cfg.Storage.ClickhouseDSN, f.clickhouseDSN)
	set(&cfg.Output.Dir, f.outputDir)
	set(&cfg.Output.KafkaTopic, f.kafkaTopic)
	set(&cfg.MetricsAddr, f.metricsAddr)
	if f.kafkaBrokers != "" {
		cfg.Output.KafkaBrokers = strings.Split(f.kafkaBrokers, ",")
	}
	if f.workers >= 0 {
		cfg.Workers = f.workers
	}
	if f.migrate {
		cfg.Storage.Migrate = true
	}
}

func parseSeeds(v string) ([]int64, error) {
	if v == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// seedableSource is a ledger source the demo fixtures can be written into.
type seedableSource interface {
	storage.LedgerSource
	pipeline.LedgerWriter
}

func run(ctx context.Context, cfg config.Config, seeds []int64, demo bool, logger *zap.Logger) error {
	metrics := observability.NewMetrics("", prometheus.DefaultRegisterer)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	var pool *postgres.Pool
	if cfg.Storage.PostgresDSN != "" {
		p, err := postgres.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p

		if cfg.Storage.Migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied", zap.Strings("files", applied))
		}
	}

	// Ledger source
	var src seedableSource
	switch cfg.Storage.Source {
	case config.SourcePostgres:
		src = postgres.NewLedgerSource(pool)
	case config.SourceDuckDB:
		d, err := duckdb.Open(ctx, cfg.Storage.DuckDBPath)
		if err != nil {
			return err
		}
		closers = append(closers, d)
		if demo {
			if err := d.CreateSchema(ctx); err != nil {
				return err
			}
		}
		src = d
	default:
		src = memory.NewLedgerStore()
		demo = true // an empty memory ledger has nothing to cluster
	}
	if demo {
		if err := pipeline.LoadDemoLedger(ctx, src); err != nil {
			return fmt.Errorf("load demo ledger: %w", err)
		}
		logger.Info("demo ledger loaded", zap.String("source", cfg.Storage.Source))
	}

	// Output stores
	var (
		recordStore       storage.EntityRecordStore
		relationshipStore storage.RelationshipStore
	)
	switch {
	case cfg.Storage.ClickhouseDSN != "":
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.Storage.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		}
		if err != nil {
			return err
		}
		closers = append(closers, conn)
		recordStore = chstore.NewEntityRecordStore(conn)
		relationshipStore = chstore.NewRelationshipStore(conn)
	case pool != nil:
		recordStore = postgres.NewEntityRecordStore(pool)
		relationshipStore = postgres.NewRelationshipStore(pool)
	default:
		recordStore = memory.NewEntityRecordStore()
		relationshipStore = memory.NewRelationshipStore()
	}

	// Optional Kafka sink
	var publisher orchestrator.Publisher
	if len(cfg.Output.KafkaBrokers) > 0 {
		k, err := sink.NewKafkaSink(cfg.Output.KafkaBrokers, cfg.Output.KafkaTopic, nil)
		if err != nil {
			return err
		}
		closers = append(closers, k)
		publisher = k
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = startMetricsServer(cfg.MetricsAddr, logger)
	}

	orch := orchestrator.New(orchestrator.Options{
		Source:            src,
		RecordStore:       recordStore,
		RelationshipStore: relationshipStore,
		Publisher:         publisher,
		OutputDir:         cfg.Output.Dir,
		Config:            cfg,
		Seeds:             seeds,
		Logger:            logger,
		Metrics:           metrics,
	})

	result, runErr := orch.Run(ctx)
	if runErr == nil {
		printSummary(result)
	}

	if srv != nil {
		if runErr == nil {
			logger.Info("serving metrics until interrupted", zap.String("addr", cfg.MetricsAddr))
			<-ctx.Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}

	return runErr
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}

func printSummary(r *orchestrator.RunResult) {
	fmt.Println("Entity clustering completed:")
	fmt.Printf("  Edges:         %d\n", r.Edges)
	fmt.Printf("  Addresses:     %d\n", r.Addresses)
	fmt.Printf("  Entities:      %d\n", r.Entities)
	fmt.Printf("  Relationships: %d\n", r.Relationships)
	for _, t := range domain.AllEntityTypes {
		fmt.Printf("    %-22s %d\n", t+":", r.TypeCounts[t])
	}
	for _, f := range r.ReportFiles {
		fmt.Printf("  - %s\n", f)
	}
}

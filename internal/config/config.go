// Package config loads pipeline configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stats modes for feature aggregation.
const (
	StatsModeTwoPass   = "two_pass"  // exact median, one sort per group
	StatsModeStreaming = "streaming" // Welford mean/variance, no median
)

// Source kinds for the ledger snapshot.
const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"
	SourceDuckDB   = "duckdb"
)

// envPrefix prefixes every environment override.
const envPrefix = "ENTITY_LAB_"

// Config is the full pipeline configuration.
type Config struct {
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Storage    StorageConfig    `yaml:"storage"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`

	// Workers bounds partition concurrency. 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MetricsAddr enables the Prometheus listener when set.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AnalysisConfig holds traversal and feature thresholds.
type AnalysisConfig struct {
	// MaxChainDepth is the number of hops followed beyond the seed edge.
	MaxChainDepth    int                 `yaml:"max_chain_depth"`
	LargeTxThreshold float64             `yaml:"large_tx_threshold"`
	MicroTxThreshold float64             `yaml:"micro_tx_threshold"`
	BusinessHours    BusinessHoursConfig `yaml:"business_hours"`
	StatsMode        string              `yaml:"stats_mode"`
	DropSelfLoops    bool                `yaml:"drop_self_loops"`
}

// BusinessHoursConfig is an inclusive hour-of-day window.
type BusinessHoursConfig struct {
	Start    int    `yaml:"start"`
	End      int    `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// Location resolves the configured timezone.
func (b BusinessHoursConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Timezone)
}

// ClassifierConfig holds thresholds for each classification rule.
type ClassifierConfig struct {
	ProfessionalService ProfessionalServiceRule `yaml:"professional_service"`
	BusinessEntity      BusinessEntityRule      `yaml:"business_entity"`
	Exchange            ExchangeRule            `yaml:"exchange"`
	MiningPool          MiningPoolRule          `yaml:"mining_pool"`
}

// ProfessionalServiceRule: peak_tx_rate > MinPeakTxRate AND address_reuse_ratio < MaxAddressReuseRatio.
type ProfessionalServiceRule struct {
	MinPeakTxRate        int     `yaml:"min_peak_tx_rate"`
	MaxAddressReuseRatio float64 `yaml:"max_address_reuse_ratio"`
}

// BusinessEntityRule: business_hours_txs > MinBusinessHoursTxs AND avg_transaction_size > MinAvgTransactionSize.
type BusinessEntityRule struct {
	MinBusinessHoursTxs   int     `yaml:"min_business_hours_txs"`
	MinAvgTransactionSize float64 `yaml:"min_avg_transaction_size"`
}

// ExchangeRule: num_transactions > MinNumTransactions AND io_ratio > MinIORatio.
type ExchangeRule struct {
	MinNumTransactions int     `yaml:"min_num_transactions"`
	MinIORatio         float64 `yaml:"min_io_ratio"`
}

// MiningPoolRule: in_degree < MaxInDegree AND avg_transaction_size > MinAvgTransactionSize.
type MiningPoolRule struct {
	MaxInDegree           int     `yaml:"max_in_degree"`
	MinAvgTransactionSize float64 `yaml:"min_avg_transaction_size"`
}

// StorageConfig selects the ledger source and output stores.
type StorageConfig struct {
	Source        string `yaml:"source"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	DuckDBPath    string `yaml:"duckdb_path"`
	Migrate       bool   `yaml:"migrate"`
}

// OutputConfig configures report files and the Kafka sink.
type OutputConfig struct {
	Dir          string   `yaml:"dir"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Analysis: AnalysisConfig{
			MaxChainDepth:    2,
			LargeTxThreshold: 100,
			MicroTxThreshold: 0.1,
			BusinessHours: BusinessHoursConfig{
				Start:    9,
				End:      17,
				Timezone: "UTC",
			},
			StatsMode: StatsModeTwoPass,
		},
		Classifier: ClassifierConfig{
			ProfessionalService: ProfessionalServiceRule{MinPeakTxRate: 10, MaxAddressReuseRatio: 0.1},
			BusinessEntity:      BusinessEntityRule{MinBusinessHoursTxs: 0, MinAvgTransactionSize: 10},
			Exchange:            ExchangeRule{MinNumTransactions: 100, MinIORatio: 0.8},
			MiningPool:          MiningPoolRule{MaxInDegree: 3, MinAvgTransactionSize: 50},
		},
		Storage: StorageConfig{
			Source: SourceMemory,
		},
		Output: OutputConfig{
			Dir:        "output",
			KafkaTopic: "entity-records",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overrides fields from ENTITY_LAB_* variables.
func (c *Config) applyEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	setInt("MAX_CHAIN_DEPTH", &c.Analysis.MaxChainDepth)
	setFloat("LARGE_TX_THRESHOLD", &c.Analysis.LargeTxThreshold)
	setFloat("MICRO_TX_THRESHOLD", &c.Analysis.MicroTxThreshold)
	setInt("BUSINESS_HOURS_START", &c.Analysis.BusinessHours.Start)
	setInt("BUSINESS_HOURS_END", &c.Analysis.BusinessHours.End)
	setString("BUSINESS_HOURS_TZ", &c.Analysis.BusinessHours.Timezone)
	setString("STATS_MODE", &c.Analysis.StatsMode)
	setBool("DROP_SELF_LOOPS", &c.Analysis.DropSelfLoops)

	setString("SOURCE", &c.Storage.Source)
	setString("POSTGRES_DSN", &c.Storage.PostgresDSN)
	setString("CLICKHOUSE_DSN", &c.Storage.ClickhouseDSN)
	setString("DUCKDB_PATH", &c.Storage.DuckDBPath)
	setBool("MIGRATE", &c.Storage.Migrate)

	setString("OUTPUT_DIR", &c.Output.Dir)
	setString("KAFKA_TOPIC", &c.Output.KafkaTopic)
	if v, ok := os.LookupEnv(envPrefix + "KAFKA_BROKERS"); ok {
		c.Output.KafkaBrokers = splitList(v)
	}

	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
	setInt("WORKERS", &c.Workers)
	setString("METRICS_ADDR", &c.MetricsAddr)

	return errors.Join(errs...)
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	a := c.Analysis
	if a.MaxChainDepth < 0 {
		return fmt.Errorf("max_chain_depth must be >= 0, got %d", a.MaxChainDepth)
	}
	if a.MicroTxThreshold < 0 || a.LargeTxThreshold < 0 {
		return fmt.Errorf("transaction size thresholds must be >= 0")
	}
	bh := a.BusinessHours
	if bh.Start < 0 || bh.Start > 23 || bh.End < 0 || bh.End > 23 {
		return fmt.Errorf("business_hours must be within [0, 23], got [%d, %d]", bh.Start, bh.End)
	}
	if bh.Start > bh.End {
		return fmt.Errorf("business_hours start %d is after end %d", bh.Start, bh.End)
	}
	if _, err := bh.Location(); err != nil {
		return fmt.Errorf("business_hours timezone: %w", err)
	}
	switch a.StatsMode {
	case StatsModeTwoPass, StatsModeStreaming:
	default:
		return fmt.Errorf("unknown stats_mode %q", a.StatsMode)
	}

	switch c.Storage.Source {
	case SourceMemory:
	case SourcePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for source %q", SourcePostgres)
		}
	case SourceDuckDB:
		if c.Storage.DuckDBPath == "" {
			return fmt.Errorf("duckdb_path is required for source %q", SourceDuckDB)
		}
	default:
		return fmt.Errorf("unknown storage source %q", c.Storage.Source)
	}

	if len(c.Output.KafkaBrokers) > 0 && c.Output.KafkaTopic == "" {
		return fmt.Errorf("kafka_topic is required when kafka_brokers is set")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// WorkerCount resolves Workers, defaulting to GOMAXPROCS.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/engramdb/engram/internal/archive"
	"github.com/engramdb/engram/internal/config"
	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/index"
	"github.com/engramdb/engram/internal/memory"
	"github.com/engramdb/engram/internal/server"
	"github.com/engramdb/engram/internal/store"
	"github.com/engramdb/engram/internal/telemetry"
	"github.com/engramdb/engram/pkg/scheduler"
)

// Version is set at build time via ldflags (e.g. -X main.Version={{.Version}}).
var Version string

func main() {
	// CRITICAL: MCP servers must ONLY output JSON-RPC to stdout.
	// All logging goes to stderr.
	configPath := flag.String("config", "", "Path to config file")
	dbType := flag.String("db-type", "", "Database type (sqlite or postgres)")
	dbPath := flag.String("db-path", "", "Database path (for sqlite)")
	dbDSN := flag.String("db-dsn", "", "Database DSN (for postgres)")
	metricsPort := flag.Int("metrics-port", 0, "Prometheus metrics port (0 = from config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	rebuildMode := flag.Bool("rebuild", false, "Rebuild the search index from stored memories and exit")
	consolidateMode := flag.Bool("consolidate", false, "Run one consolidation pass and exit")
	archiveDir := flag.String("archive", "", "Write a markdown snapshot of all memories to this directory and exit")
	restoreDir := flag.String("restore", "", "Import memories from a markdown snapshot directory and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Engram MCP Server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Server Mode:\n")
		fmt.Fprintf(os.Stderr, "  %s                       Start MCP server (stdio)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMaintenance:\n")
		fmt.Fprintf(os.Stderr, "  %s --rebuild             Rebuild the search index and exit\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --consolidate         Run one consolidation pass and exit\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --archive <dir>       Snapshot all memories as markdown and exit\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --restore <dir>       Import memories from a markdown snapshot and exit\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DB_TYPE            Database type (sqlite or postgres)\n")
		fmt.Fprintf(os.Stderr, "  DB_PATH            SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  DB_DSN             PostgreSQL connection string\n")
		fmt.Fprintf(os.Stderr, "  PORT               Prometheus metrics port\n")
		fmt.Fprintf(os.Stderr, "  ENGRAM_LOG_LEVEL   Log level (debug, info, warn, error)\n")
	}

	flag.Parse()

	if *rebuildMode && *consolidateMode {
		fmt.Fprintln(os.Stderr, "ERROR: --rebuild and --consolidate cannot be used together")
		os.Exit(1)
	}
	if *archiveDir != "" && *restoreDir != "" {
		fmt.Fprintln(os.Stderr, "ERROR: --archive and --restore cannot be used together")
		os.Exit(1)
	}

	// Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: failed to load config: %v, using defaults\n", err)
		cfg = config.DefaultConfig()
	}

	applyEnvOverrides(cfg)
	applyCLIOverrides(cfg, *dbType, *dbPath, *dbDSN, *metricsPort, *logLevel)

	logger := telemetry.NewLogger(cfg.Telemetry.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting engram", "version", version(), "database", cfg.Database.Type)

	weights := salienceWeights(cfg)

	st, err := store.Open(store.Config{
		Type:        cfg.Database.Type,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresDSN: cfg.Database.PostgresDSN,
		Salience:    weights,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var provider embedding.Provider
	if cfg.Embedding.Enabled {
		provider = embedding.NewHashProvider(cfg.Embedding.Dimensions)
	} else {
		logger.Info("embeddings disabled, semantic search degrades to keyword search")
	}

	idx := index.NewEngine(provider, index.Config{
		ClusterThreshold:     cfg.Index.ClusterThreshold,
		MaxClusters:          cfg.Index.MaxClusters,
		ChainSimilarityFloor: cfg.Index.ChainSimilarityFloor,
		Logger:               logger,
	})

	eng := engine.New(st, idx, engine.Config{
		Salience: weights,
		Consolidation: engine.ConsolidationPolicy{
			DecayWindow:       time.Duration(cfg.Consolidation.DecayWindowHours) * time.Hour,
			DecayFactor:       cfg.Consolidation.DecayFactor,
			RecentAccessGrace: time.Duration(cfg.Consolidation.RecentAccessGraceHours) * time.Hour,
			EvictionThreshold: cfg.Consolidation.EvictionThreshold,
			MergeThreshold:    cfg.Consolidation.MergeThreshold,
		},
	}, logger)

	ctx := context.Background()

	// The index lives in memory; every start rebuilds it from the store.
	result, err := eng.RebuildIndex(ctx)
	if err != nil {
		logger.Error("failed to build index", "error", err)
		os.Exit(1)
	}

	switch {
	case *rebuildMode:
		fmt.Fprintf(os.Stderr, "Index rebuilt: %d memories, %d embeddings, %d clusters\n",
			result.RecordsProcessed, result.EmbeddingsStored, result.ClustersFormed)
		return

	case *consolidateMode:
		runConsolidateMode(ctx, eng, logger)
		return

	case *archiveDir != "":
		runArchiveMode(ctx, eng, st, *archiveDir, logger)
		return

	case *restoreDir != "":
		runRestoreMode(ctx, eng, *restoreDir, logger)
		return
	}

	// SERVER MODE
	if cfg.Telemetry.MetricsEnabled {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
		telemetry.StartMetricsServer(addr, logger)
		logger.Info("metrics listener started", "addr", addr)
	}

	interval := time.Duration(cfg.Consolidation.IntervalMinutes) * time.Minute
	sched := scheduler.NewScheduler(func(ctx context.Context) error {
		_, err := eng.Consolidate(ctx)
		return err
	}, interval, logger)
	sched.Start()
	defer sched.Stop()

	srv := server.NewMCPServer(eng, logger)
	srv.RegisterTools()
	logger.Info("MCP server ready (stdio mode)")

	if err := srv.ServeStdio(); err != nil {
		logger.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

func version() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

// runConsolidateMode runs one consolidation pass and prints the result
func runConsolidateMode(ctx context.Context, eng *engine.Engine, logger *slog.Logger) {
	result, err := eng.Consolidate(ctx)
	if err != nil {
		logger.Error("consolidation failed", "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Consolidation complete: %d examined, %d decayed, %d evicted, %d merged\n",
		result.Examined, result.Decayed, result.Evicted, result.Merged)
}

// runArchiveMode snapshots every memory as markdown under dir
func runArchiveMode(ctx context.Context, eng *engine.Engine, st store.Store, dir string, logger *slog.Logger) {
	records, err := st.ListAll(ctx)
	if err != nil {
		logger.Error("failed to list memories", "error", err)
		os.Exit(1)
	}
	written, err := archive.New(dir, logger).WriteSnapshot(records)
	if err != nil {
		logger.Error("snapshot failed", "written", written, "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Archived %d memories to %s\n", written, dir)
}

// runRestoreMode imports every parseable markdown memory under dir
func runRestoreMode(ctx context.Context, eng *engine.Engine, dir string, logger *slog.Logger) {
	records, err := archive.New(dir, logger).ReadSnapshot()
	if err != nil {
		logger.Error("failed to read snapshot", "error", err)
		os.Exit(1)
	}
	count := 0
	for _, rec := range records {
		rec.Clamp()
		if err := eng.Restore(ctx, rec); err != nil {
			logger.Warn("skipping memory", "id", rec.ID, "error", err)
			continue
		}
		count++
	}
	fmt.Fprintf(os.Stderr, "Restored %d of %d memories from %s\n", count, len(records), dir)
}

func salienceWeights(cfg *config.Config) memory.SalienceWeights {
	return memory.SalienceWeights{
		Recency:         cfg.Salience.RecencyWeight,
		Priority:        cfg.Salience.PriorityWeight,
		Reinforcement:   cfg.Salience.ReinforcementWeight,
		Emotion:         cfg.Salience.EmotionWeight,
		RecencyHalfLife: time.Duration(cfg.Salience.RecencyHalfLifeHours) * time.Hour,
	}
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *config.Config) {
	if dbType := getEnv("DB_TYPE", "ENGRAM_DB_TYPE"); dbType != "" {
		cfg.Database.Type = dbType
	}
	if dbPath := getEnv("DB_PATH", "ENGRAM_DB_PATH"); dbPath != "" {
		cfg.Database.SQLitePath = dbPath
	}
	if dbDSN := getEnv("DB_DSN", "ENGRAM_DB_DSN"); dbDSN != "" {
		cfg.Database.PostgresDSN = dbDSN
	}
	if portStr := getEnv("PORT", "ENGRAM_METRICS_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.MetricsPort = port
		}
	}
	if level := getEnv("ENGRAM_LOG_LEVEL"); level != "" {
		cfg.Telemetry.LogLevel = level
	}
}

// applyCLIOverrides applies command-line flag overrides to configuration
func applyCLIOverrides(cfg *config.Config, dbType, dbPath, dbDSN string, metricsPort int, logLevel string) {
	if dbType != "" {
		cfg.Database.Type = dbType
	}
	if dbPath != "" {
		cfg.Database.SQLitePath = dbPath
	}
	if dbDSN != "" {
		cfg.Database.PostgresDSN = dbDSN
	}
	if metricsPort > 0 {
		cfg.Server.MetricsPort = metricsPort
	}
	if logLevel != "" {
		cfg.Telemetry.LogLevel = logLevel
	}
}

// getEnv tries multiple environment variable names and returns the first non-empty value
func getEnv(names ...string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

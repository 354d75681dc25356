// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".engram/configs"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.json"
)

// Load reads configuration from ~/.engram/configs/config.json
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configPath)

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return loadFromDefaults(v)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromPath loads configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.metrics_port", 2112)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	homeDir, _ := os.UserHomeDir()
	v.SetDefault("database.sqlite_path", filepath.Join(homeDir, ".engram/db/engram.db"))

	// Embedding defaults
	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.dimensions", 128)

	// Salience defaults
	v.SetDefault("salience.recency_weight", 0.35)
	v.SetDefault("salience.priority_weight", 0.30)
	v.SetDefault("salience.reinforcement_weight", 0.20)
	v.SetDefault("salience.emotion_weight", 0.15)
	v.SetDefault("salience.recency_half_life_hours", 72)

	// Consolidation defaults
	v.SetDefault("consolidation.interval_minutes", 60)
	v.SetDefault("consolidation.decay_window_hours", 24)
	v.SetDefault("consolidation.decay_factor", 0.9)
	v.SetDefault("consolidation.recent_access_grace_hours", 6)
	v.SetDefault("consolidation.eviction_threshold", 0.05)
	v.SetDefault("consolidation.merge_threshold", 0.97)

	// Index defaults
	v.SetDefault("index.cluster_threshold", 0.85)
	v.SetDefault("index.max_clusters", 64)
	v.SetDefault("index.chain_similarity_floor", 0.8)

	// Telemetry defaults
	v.SetDefault("telemetry.metrics_enabled", false)
	v.SetDefault("telemetry.log_level", "info")
}

// loadFromDefaults creates a config from default values
func loadFromDefaults(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}

// validate checks if the configuration is valid. Zero values for tunables
// mean "unset" and are backfilled with the defaults; non-zero values out
// of range are rejected.
func validate(cfg *Config) error {
	// Validate database type
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "postgres" {
		return fmt.Errorf("database.type must be 'sqlite' or 'postgres', got '%s'", cfg.Database.Type)
	}

	// Validate database connection info
	if cfg.Database.Type == "sqlite" && cfg.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required when type is 'sqlite'")
	}
	if cfg.Database.Type == "postgres" && cfg.Database.PostgresDSN == "" {
		return fmt.Errorf("database.postgres_dsn is required when type is 'postgres'")
	}

	// Validate metrics port
	if cfg.Server.MetricsPort < 1 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("server.metrics_port must be between 1 and 65535, got %d", cfg.Server.MetricsPort)
	}

	// Validate embedding settings
	if cfg.Embedding.Enabled && cfg.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding.dimensions must be at least 1, got %d", cfg.Embedding.Dimensions)
	}

	// Validate salience weights; an all-zero block means unset
	s := &cfg.Salience
	if s.RecencyWeight < 0 || s.PriorityWeight < 0 || s.ReinforcementWeight < 0 || s.EmotionWeight < 0 {
		return fmt.Errorf("salience weights must not be negative")
	}
	if s.RecencyWeight == 0 && s.PriorityWeight == 0 && s.ReinforcementWeight == 0 && s.EmotionWeight == 0 {
		s.RecencyWeight = 0.35
		s.PriorityWeight = 0.30
		s.ReinforcementWeight = 0.20
		s.EmotionWeight = 0.15
	}
	if s.RecencyHalfLifeHours < 0 {
		return fmt.Errorf("salience.recency_half_life_hours must be at least 1, got %d", s.RecencyHalfLifeHours)
	}
	if s.RecencyHalfLifeHours == 0 {
		s.RecencyHalfLifeHours = 72
	}

	// Validate consolidation settings
	c := &cfg.Consolidation
	if c.IntervalMinutes < 0 {
		return fmt.Errorf("consolidation.interval_minutes must not be negative, got %d", c.IntervalMinutes)
	}
	if c.DecayWindowHours < 0 {
		return fmt.Errorf("consolidation.decay_window_hours must be at least 1, got %d", c.DecayWindowHours)
	}
	if c.DecayWindowHours == 0 {
		c.DecayWindowHours = 24
	}
	if c.DecayFactor < 0 || c.DecayFactor > 1 {
		return fmt.Errorf("consolidation.decay_factor must be between 0 and 1, got %g", c.DecayFactor)
	}
	if c.DecayFactor == 0 {
		c.DecayFactor = 0.9
	}
	if c.RecentAccessGraceHours < 0 {
		return fmt.Errorf("consolidation.recent_access_grace_hours must not be negative, got %d", c.RecentAccessGraceHours)
	}
	if c.EvictionThreshold < 0 || c.EvictionThreshold >= 1 {
		return fmt.Errorf("consolidation.eviction_threshold must be between 0 and 1, got %g", c.EvictionThreshold)
	}
	if c.MergeThreshold < 0 || c.MergeThreshold > 1 {
		return fmt.Errorf("consolidation.merge_threshold must be between 0 and 1, got %g", c.MergeThreshold)
	}
	if c.MergeThreshold == 0 {
		c.MergeThreshold = 0.97
	}

	// Validate index settings
	i := &cfg.Index
	if i.ClusterThreshold < 0 || i.ClusterThreshold >= 1 {
		return fmt.Errorf("index.cluster_threshold must be between 0 and 1, got %g", i.ClusterThreshold)
	}
	if i.ClusterThreshold == 0 {
		i.ClusterThreshold = 0.85
	}
	if i.MaxClusters < 0 {
		return fmt.Errorf("index.max_clusters must not be negative, got %d", i.MaxClusters)
	}
	if i.MaxClusters == 0 {
		i.MaxClusters = 64
	}
	if i.ChainSimilarityFloor < 0 || i.ChainSimilarityFloor >= 1 {
		return fmt.Errorf("index.chain_similarity_floor must be between 0 and 1, got %g", i.ChainSimilarityFloor)
	}
	if i.ChainSimilarityFloor == 0 {
		i.ChainSimilarityFloor = 0.8
	}

	// Validate log level
	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = LogLevelInfo
	}
	if !IsValidLogLevel(cfg.Telemetry.LogLevel) {
		return fmt.Errorf("telemetry.log_level must be one of %v, got '%s'", ValidLogLevels(), cfg.Telemetry.LogLevel)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Server: ServerConfig{
			Host:        "localhost",
			MetricsPort: 2112,
		},
		Database: DatabaseConfig{
			Type:       "sqlite",
			SQLitePath: filepath.Join(homeDir, ".engram/db/engram.db"),
		},
		Embedding: EmbeddingConfig{
			Enabled:    true,
			Dimensions: 128,
		},
		Salience: SalienceConfig{
			RecencyWeight:        0.35,
			PriorityWeight:       0.30,
			ReinforcementWeight:  0.20,
			EmotionWeight:        0.15,
			RecencyHalfLifeHours: 72,
		},
		Consolidation: ConsolidationConfig{
			IntervalMinutes:        60,
			DecayWindowHours:       24,
			DecayFactor:            0.9,
			RecentAccessGraceHours: 6,
			EvictionThreshold:      0.05,
			MergeThreshold:         0.97,
		},
		Index: IndexConfig{
			ClusterThreshold:     0.85,
			MaxClusters:          64,
			ChainSimilarityFloor: 0.8,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: false,
			LogLevel:       LogLevelInfo,
		},
	}
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Salience      SalienceConfig      `mapstructure:"salience"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Index         IndexConfig         `mapstructure:"index"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig holds the metrics listener settings. The MCP surface
// itself runs over stdio and needs no address.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Type        string `mapstructure:"type"` // "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// EmbeddingConfig holds settings for the deterministic hash embedder
type EmbeddingConfig struct {
	Enabled    bool `mapstructure:"enabled"`    // Disables semantic retrieval when false
	Dimensions int  `mapstructure:"dimensions"` // Vector dimensions (e.g., 128)
}

// SalienceConfig holds the scoring weights for memory retrieval
type SalienceConfig struct {
	RecencyWeight        float64 `mapstructure:"recency_weight"`
	PriorityWeight       float64 `mapstructure:"priority_weight"`
	ReinforcementWeight  float64 `mapstructure:"reinforcement_weight"`
	EmotionWeight        float64 `mapstructure:"emotion_weight"`
	RecencyHalfLifeHours int     `mapstructure:"recency_half_life_hours"`
}

// ConsolidationConfig holds the background maintenance settings
type ConsolidationConfig struct {
	IntervalMinutes        int     `mapstructure:"interval_minutes"` // 0 disables the scheduler
	DecayWindowHours       int     `mapstructure:"decay_window_hours"`
	DecayFactor            float64 `mapstructure:"decay_factor"`
	RecentAccessGraceHours int     `mapstructure:"recent_access_grace_hours"`
	EvictionThreshold      float64 `mapstructure:"eviction_threshold"`
	MergeThreshold         float64 `mapstructure:"merge_threshold"`
}

// IndexConfig holds in-memory index tuning
type IndexConfig struct {
	ClusterThreshold     float64 `mapstructure:"cluster_threshold"`
	MaxClusters          int     `mapstructure:"max_clusters"`
	ChainSimilarityFloor float64 `mapstructure:"chain_similarity_floor"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	LogLevel       string `mapstructure:"log_level"` // "debug", "info", "warn" or "error"
}

// Log levels accepted by telemetry.log_level
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// ValidLogLevels returns all valid log level values
func ValidLogLevels() []string {
	return []string{
		LogLevelDebug,
		LogLevelInfo,
		LogLevelWarn,
		LogLevelError,
	}
}

// isValidType is a generic helper to check if a type is in a list of valid types
func isValidType(aType string, validTypes []string) bool {
	for _, valid := range validTypes {
		if aType == valid {
			return true
		}
	}
	return false
}

// IsValidLogLevel checks if a log level is valid
func IsValidLogLevel(level string) bool {
	return isValidType(level, ValidLogLevels())
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network
// requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperfuse/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// MetadataConfig holds settings for the metadata source.
type MetadataConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults caps the number of records returned by a listing (default 100).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// SourceConfig holds settings for source archive acquisition and the
// evidence cache.
type SourceConfig struct {
	HTTPConfig `yaml:",inline"`

	// CacheDir is the directory for cached flattened source text.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// CacheTTL is how long cached evidence stays valid (default 7 days).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// CompletionConfig holds settings for one completion provider.
type CompletionConfig struct {
	// Provider selects the wire protocol: "anthropic" or "openrouter".
	Provider string `json:"provider" yaml:"provider"`

	// Model is the model identifier passed to the provider.
	Model string `json:"model" yaml:"model"`

	// APIKey authenticates with the provider. Usually supplied through the
	// PAPERFUSE_COMPLETION_API_KEY environment variable.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint. Tests substitute an
	// httptest server here.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// MaxTokens caps the completion output length (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature is the sampling temperature (default 0).
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxAttempts caps retry attempts on transient failures (default 10).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// PipelineConfig holds settings for the depth orchestrator.
type PipelineConfig struct {
	// Depth is the target analysis depth: basic, standard, or full.
	Depth string `json:"depth" yaml:"depth"`

	// MaxPapers caps the papers processed in one run (default 20).
	MaxPapers int `json:"max_papers" yaml:"max_papers"`

	// LookbackDays is the metadata listing window in days (default 3).
	LookbackDays int `json:"lookback_days" yaml:"lookback_days"`

	// Categories are the subject categories to list (e.g. "cs.CL").
	Categories []string `json:"categories" yaml:"categories"`

	// Force reprocesses papers regardless of their recorded depth. The
	// ledger still never regresses a stored depth.
	Force bool `json:"force" yaml:"force"`

	// MinScoreToSave discards standard-depth papers scoring below it
	// (default 5).
	MinScoreToSave int `json:"min_score_to_save" yaml:"min_score_to_save"`

	// DetailThreshold triggers the phase-2 detail call for standard-depth
	// papers scoring at or above it (default 7).
	DetailThreshold int `json:"detail_threshold" yaml:"detail_threshold"`
}

// LedgerConfig holds settings for the analysis ledger.
type LedgerConfig struct {
	// DataDir is the directory holding the ledger database.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// MaxResults is the default page size for filtered listings (default 50).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// Config is the root configuration for the paperfuse pipeline.
type Config struct {
	Metadata   MetadataConfig   `json:"metadata" yaml:"metadata"`
	Source     SourceConfig     `json:"source" yaml:"source"`
	Completion CompletionConfig `json:"completion" yaml:"completion"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Metadata.Timeout <= 0 {
		c.Metadata.Timeout = 30 * time.Second
	}
	if c.Metadata.UserAgent == "" {
		c.Metadata.UserAgent = "paperfuse/0.1"
	}
	if c.Metadata.MaxResults <= 0 {
		c.Metadata.MaxResults = 100
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 60 * time.Second
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = c.Metadata.UserAgent
	}
	if c.Source.CacheDir == "" {
		c.Source.CacheDir = "cache/evidence"
	}
	if c.Source.CacheTTL <= 0 {
		c.Source.CacheTTL = 7 * 24 * time.Hour
	}
	if c.Completion.Provider == "" {
		c.Completion.Provider = "anthropic"
	}
	if c.Completion.MaxTokens <= 0 {
		c.Completion.MaxTokens = 4096
	}
	if c.Completion.MaxAttempts <= 0 {
		c.Completion.MaxAttempts = 10
	}
	if c.Completion.Timeout <= 0 {
		c.Completion.Timeout = 120 * time.Second
	}
	if c.Pipeline.Depth == "" {
		c.Pipeline.Depth = "standard"
	}
	if c.Pipeline.MaxPapers <= 0 {
		c.Pipeline.MaxPapers = 20
	}
	if c.Pipeline.LookbackDays <= 0 {
		c.Pipeline.LookbackDays = 3
	}
	if c.Pipeline.MinScoreToSave <= 0 {
		c.Pipeline.MinScoreToSave = 5
	}
	if c.Pipeline.DetailThreshold <= 0 {
		c.Pipeline.DetailThreshold = 7
	}
	if c.Ledger.DataDir == "" {
		c.Ledger.DataDir = "data"
	}
	if c.Ledger.MaxResults <= 0 {
		c.Ledger.MaxResults = 50
	}
}

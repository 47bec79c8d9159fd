// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AIConfig holds settings for the extraction model.
type AIConfig struct {
	// Model is the chat model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens limits the response length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// RequestsPerSecond throttles calls to the API. Zero disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// EmbeddingConfig holds settings for the embedding model.
type EmbeddingConfig struct {
	// Model is the embedding model identifier (e.g. "text-embedding-3-small").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// CacheTTL is how long embeddings stay memoised (default 1h).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// RetryConfig holds the extraction driver's retry policy.
type RetryConfig struct {
	// MaxAttempts bounds the attempts per case (default 10).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// InitialTemperature is the temperature of the first attempt (default 0.1).
	InitialTemperature float64 `json:"initial_temperature" yaml:"initial_temperature" mapstructure:"initial_temperature"`

	// TemperatureStep is added after each failed attempt (default 0.1).
	TemperatureStep float64 `json:"temperature_step" yaml:"temperature_step" mapstructure:"temperature_step"`

	// MaxTemperature caps the escalation (default 0.5).
	MaxTemperature float64 `json:"max_temperature" yaml:"max_temperature" mapstructure:"max_temperature"`

	// AttemptTimeout bounds one extractor call (default 5m).
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
}

// DefaultRetryConfig returns the retry policy used when nothing is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:        10,
		InitialTemperature: 0.1,
		TemperatureStep:    0.1,
		MaxTemperature:     0.5,
		AttemptTimeout:     5 * time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultRetryConfig.
func (c RetryConfig) WithDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialTemperature <= 0 {
		c.InitialTemperature = d.InitialTemperature
	}
	if c.TemperatureStep <= 0 {
		c.TemperatureStep = d.TemperatureStep
	}
	if c.MaxTemperature <= 0 {
		c.MaxTemperature = d.MaxTemperature
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	return c
}

// RecordsConfig locates the structured case record files.
type RecordsConfig struct {
	// MissingPersonFile is the CSV of case-narrative records.
	MissingPersonFile string `json:"missing_person_file" yaml:"missing_person_file" mapstructure:"missing_person_file"`

	// VulnerabilityFile is the CSV of incident/vulnerability records.
	VulnerabilityFile string `json:"vulnerability_file" yaml:"vulnerability_file" mapstructure:"vulnerability_file"`
}

// ResultsConfig locates the results store.
type ResultsConfig struct {
	// Dir holds results.db, the per-category CSV snapshots and exports.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// EvalConfig groups every setting of an evaluation run.
type EvalConfig struct {
	Records   RecordsConfig   `json:"records" yaml:"records" mapstructure:"records"`
	Results   ResultsConfig   `json:"results" yaml:"results" mapstructure:"results"`
	AI        AIConfig        `json:"ai" yaml:"ai" mapstructure:"ai"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Retry     RetryConfig     `json:"retry" yaml:"retry" mapstructure:"retry"`

	// ArtifactsDir receives one extraction artifact per case and category.
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir" mapstructure:"artifacts_dir"`

	// Categories overrides the default matching policy per category.
	Categories map[Category]CategoryOverride `json:"categories,omitempty" yaml:"categories,omitempty" mapstructure:"categories"`
}

// CategoryPolicy returns the effective policy for c.
func (c EvalConfig) CategoryPolicy(cat Category) CategoryConfig {
	base := DefaultCategories()[cat]
	if o, ok := c.Categories[cat]; ok {
		return base.Apply(o)
	}
	return base
}

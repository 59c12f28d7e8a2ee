// Package config provides configuration loading and management for newsdesk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/newsdesk/llm"
	"github.com/c360studio/newsdesk/model"
	"github.com/c360studio/newsdesk/news"
	"github.com/c360studio/newsdesk/retry"
	"github.com/c360studio/newsdesk/source"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendKV       = "kv"
	BackendPostgres = "postgres"
)

// Config represents the complete newsdesk configuration
type Config struct {
	Providers model.RegistryConfig `yaml:"providers"`
	Gateway   GatewayConfig        `yaml:"gateway"`
	Retry     retry.Config         `yaml:"retry"`
	Store     StoreConfig          `yaml:"store"`
	NATS      NATSConfig           `yaml:"nats"`
	Graph     GraphConfig          `yaml:"graph"`
	Batch     BatchConfig          `yaml:"batch"`
	Sources   SourcesConfig        `yaml:"sources"`
	Jobs      []news.Job           `yaml:"jobs,omitempty"`
}

// GatewayConfig configures call timeouts and background polling
type GatewayConfig struct {
	// CallTimeout bounds each synchronous provider call
	CallTimeout time.Duration `yaml:"call_timeout"`
	// PollInterval is the wait between status fetches
	PollInterval time.Duration `yaml:"poll_interval"`
	// PollMaxAttempts caps status fetches per response
	PollMaxAttempts int `yaml:"poll_max_attempts"`
	// PollBudget is the wall-clock ceiling for polling (0 = interval x attempts)
	PollBudget time.Duration `yaml:"poll_budget,omitempty"`
}

// StoreConfig selects and configures the record store
type StoreConfig struct {
	// Backend is memory, kv (NATS JetStream KV) or postgres
	Backend string `yaml:"backend"`
	// BucketPrefix prefixes KV bucket names
	BucketPrefix string `yaml:"bucket_prefix,omitempty"`
	// PostgresDSNEnv names the environment variable holding the Postgres DSN
	PostgresDSNEnv string `yaml:"postgres_dsn_env,omitempty"`
	// TablePrefix prefixes Postgres table names
	TablePrefix string `yaml:"table_prefix,omitempty"`
	// Collections maps article kinds to collection names
	Collections map[news.Kind]string `yaml:"collections,omitempty"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
}

// GraphConfig configures knowledge graph publishing
type GraphConfig struct {
	// Enabled publishes call records and articles to the graph
	Enabled bool `yaml:"enabled"`
	// Org is the first entity ID segment
	Org string `yaml:"org"`
	// Project is the fifth entity ID segment
	Project string `yaml:"project"`
}

// BatchConfig configures the news desk
type BatchConfig struct {
	// RequestsPerMinute caps model calls (0 = unlimited)
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// Concurrency is the number of jobs run at once
	Concurrency int `yaml:"concurrency"`
	// MaxItems caps articles kept per job (0 = no cap)
	MaxItems int `yaml:"max_items"`
}

// SourcesConfig configures source page fetching
type SourcesConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
	MaxContentSize int64         `yaml:"max_content_size"`
	// MaxChars caps the page text handed to a prompt
	MaxChars int `yaml:"max_chars"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	health := model.DefaultHealthConfig()
	return &Config{
		Providers: model.RegistryConfig{
			Primary: &model.EndpointConfig{
				Provider:     "openai",
				Model:        "gpt-5",
				MaxTokens:    8192,
				Capabilities: []model.Capability{model.CapabilityWebSearch, model.CapabilityBackground},
			},
			Secondary: &model.EndpointConfig{
				Provider:     "anthropic",
				Model:        "claude-sonnet-4-5",
				MaxTokens:    8192,
				Capabilities: []model.Capability{model.CapabilityWebSearch},
			},
			Health: &health,
		},
		Gateway: GatewayConfig{
			CallTimeout:     llm.DefaultCallTimeout,
			PollInterval:    llm.DefaultPollInterval,
			PollMaxAttempts: llm.DefaultPollMaxAttempts,
		},
		Retry: retry.DefaultConfig(),
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Graph: GraphConfig{
			Org:     "local",
			Project: "newsdesk",
		},
		Batch: BatchConfig{
			RequestsPerMinute: 20,
			Concurrency:       1,
			MaxItems:          10,
		},
		Sources: SourcesConfig{
			Timeout:        source.DefaultTimeout,
			MaxContentSize: source.DefaultMaxContentSize,
			MaxChars:       source.DefaultMaxChars,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Providers.Primary == nil && c.Providers.Secondary == nil {
		return fmt.Errorf("providers: at least one of primary or secondary is required")
	}
	if err := model.NewRegistryFromConfig(&c.Providers).Validate(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("gateway.call_timeout must be positive")
	}
	if c.Gateway.PollInterval < 0 || c.Gateway.PollBudget < 0 {
		return fmt.Errorf("gateway poll interval and budget must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendKV:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the kv store")
		}
	case BackendPostgres:
		if c.Store.PostgresDSNEnv == "" {
			return fmt.Errorf("store.postgres_dsn_env is required for the postgres store")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, kv, postgres; got %q", c.Store.Backend)
	}
	for kind := range c.Store.Collections {
		if !kind.IsValid() {
			return fmt.Errorf("store.collections: unknown article kind %q", kind)
		}
	}
	if c.Graph.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required for graph publishing")
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1")
	}
	if c.Batch.RequestsPerMinute < 0 || c.Batch.MaxItems < 0 {
		return fmt.Errorf("batch limits must not be negative")
	}
	for i, job := range c.Jobs {
		if job.Kind != "" && !job.Kind.IsValid() {
			return fmt.Errorf("jobs[%d]: unknown article kind %q", i, job.Kind)
		}
	}
	return nil
}

// NeedsNATS reports whether any configured component talks to NATS.
func (c *Config) NeedsNATS() bool {
	return c.Store.Backend == BackendKV || c.Graph.Enabled
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadOverlay reads a YAML file onto an empty Config, so Merge only sees
// the values the file actually sets.
func loadOverlay(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Providers: a slot in other replaces the whole endpoint
	if other.Providers.Primary != nil {
		c.Providers.Primary = other.Providers.Primary
	}
	if other.Providers.Secondary != nil {
		c.Providers.Secondary = other.Providers.Secondary
	}
	if other.Providers.Health != nil {
		c.Providers.Health = other.Providers.Health
	}

	// Gateway
	if other.Gateway.CallTimeout != 0 {
		c.Gateway.CallTimeout = other.Gateway.CallTimeout
	}
	if other.Gateway.PollInterval != 0 {
		c.Gateway.PollInterval = other.Gateway.PollInterval
	}
	if other.Gateway.PollMaxAttempts != 0 {
		c.Gateway.PollMaxAttempts = other.Gateway.PollMaxAttempts
	}
	if other.Gateway.PollBudget != 0 {
		c.Gateway.PollBudget = other.Gateway.PollBudget
	}

	// Retry
	if other.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.BaseDelay != 0 {
		c.Retry.BaseDelay = other.Retry.BaseDelay
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.BucketPrefix != "" {
		c.Store.BucketPrefix = other.Store.BucketPrefix
	}
	if other.Store.PostgresDSNEnv != "" {
		c.Store.PostgresDSNEnv = other.Store.PostgresDSNEnv
	}
	if other.Store.TablePrefix != "" {
		c.Store.TablePrefix = other.Store.TablePrefix
	}
	for kind, name := range other.Store.Collections {
		if c.Store.Collections == nil {
			c.Store.Collections = make(map[news.Kind]string)
		}
		c.Store.Collections[kind] = name
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Graph
	if other.Graph.Enabled {
		c.Graph.Enabled = true
	}
	if other.Graph.Org != "" {
		c.Graph.Org = other.Graph.Org
	}
	if other.Graph.Project != "" {
		c.Graph.Project = other.Graph.Project
	}

	// Batch
	if other.Batch.RequestsPerMinute != 0 {
		c.Batch.RequestsPerMinute = other.Batch.RequestsPerMinute
	}
	if other.Batch.Concurrency != 0 {
		c.Batch.Concurrency = other.Batch.Concurrency
	}
	if other.Batch.MaxItems != 0 {
		c.Batch.MaxItems = other.Batch.MaxItems
	}

	// Sources
	if other.Sources.Timeout != 0 {
		c.Sources.Timeout = other.Sources.Timeout
	}
	if other.Sources.UserAgent != "" {
		c.Sources.UserAgent = other.Sources.UserAgent
	}
	if other.Sources.MaxContentSize != 0 {
		c.Sources.MaxContentSize = other.Sources.MaxContentSize
	}
	if other.Sources.MaxChars != 0 {
		c.Sources.MaxChars = other.Sources.MaxChars
	}

	// Jobs: a later layer's list replaces the earlier one
	if len(other.Jobs) > 0 {
		c.Jobs = other.Jobs
	}
}

// PollerOptions converts the gateway section into poller options.
func (c *Config) PollerOptions() []llm.PollerOption {
	opts := []llm.PollerOption{
		llm.WithPollInterval(c.Gateway.PollInterval),
		llm.WithPollMaxAttempts(c.Gateway.PollMaxAttempts),
	}
	if c.Gateway.PollBudget > 0 {
		opts = append(opts, llm.WithPollBudget(c.Gateway.PollBudget))
	}
	return opts
}

package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pipeline tuning. Zero values take defaults.
type Config struct {
	Text        TextConfig     `yaml:"text"`
	Batch       BatchConfig    `yaml:"batch"`
	Retry       RetryConfig    `yaml:"retry"`
	Monitor     MonitorConfig  `yaml:"monitor"`
	Deferred    DeferredConfig `yaml:"deferred"`
	// Concurrency is the number of outstanding batch calls during the
	// initial full-page pass. Default: 2.
	Concurrency int `yaml:"concurrency"`
}

// TextConfig bounds text validation.
type TextConfig struct {
	MinLen int `yaml:"min_len"`
	MaxLen int `yaml:"max_len"`
}

// BatchConfig bounds batch construction.
type BatchConfig struct {
	MaxBatchSize  int `yaml:"max_batch_size"`
	MaxTextLength int `yaml:"max_text_length"`
}

// RetryConfig controls executor retry behaviour. The dynamic and deferred
// paths run with the smaller budget so a busy page does not back up behind
// backoff delays.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	DynamicMaxRetries int           `yaml:"dynamic_max_retries"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// MonitorConfig controls the dynamic content monitor.
type MonitorConfig struct {
	Debounce   time.Duration `yaml:"debounce"`
	MaxPending int           `yaml:"max_pending"`
	ChunkSize  int           `yaml:"chunk_size"`
}

// DeferredConfig controls scroll-aware deferred translation.
type DeferredConfig struct {
	// ImmediateCount is how many below-fold nodes are translated right
	// after the viewport pass instead of being deferred.
	ImmediateCount int `yaml:"immediate_count"`
	ChunkSize      int `yaml:"chunk_size"`
}

func (c *Config) defaults() {
	if c.Text.MinLen <= 0 {
		c.Text.MinLen = 2
	}
	if c.Text.MaxLen <= 0 {
		c.Text.MaxLen = 5000
	}
	if c.Batch.MaxBatchSize <= 0 {
		c.Batch.MaxBatchSize = 20
	}
	if c.Batch.MaxTextLength <= 0 {
		c.Batch.MaxTextLength = 2000
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.DynamicMaxRetries <= 0 {
		c.Retry.DynamicMaxRetries = 1
	}
	if c.Retry.BackoffBase <= 0 {
		c.Retry.BackoffBase = 250 * time.Millisecond
	}
	if c.Retry.BackoffMax <= 0 {
		c.Retry.BackoffMax = 4 * time.Second
	}
	if c.Monitor.Debounce <= 0 {
		c.Monitor.Debounce = 300 * time.Millisecond
	}
	if c.Monitor.MaxPending <= 0 {
		c.Monitor.MaxPending = 1000
	}
	if c.Monitor.ChunkSize <= 0 {
		c.Monitor.ChunkSize = 50
	}
	if c.Deferred.ImmediateCount <= 0 {
		c.Deferred.ImmediateCount = 20
	}
	if c.Deferred.ChunkSize <= 0 {
		c.Deferred.ChunkSize = 25
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("pipeline: parse config: %w", err)
	}
	return cfg, nil
}

// ============================================================================
// YAML Configuration
// ============================================================================
//
// Package: internal/config
// Purpose: Load the YAML config file into the full option table the queue
// needs to run (spec.md §6 worker tunables, plus the ambient store/metrics/
// HTTP sections). Grounded on internal/cli/cli.go's Config struct and
// loadConfig — same yaml.v3-backed, nested-struct-per-concern shape, with
// the raft-specific worker/master fields removed and the spec's tunables
// substituted in.
// ============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete system configuration, one nested struct per
// concern, loaded from a YAML file.
type Config struct {
	Worker struct {
		MaximumConcurrency int `yaml:"maximum_concurrency"`
		MaximumQueueSize   int `yaml:"maximum_queue_size"`
		PollingIntervalMs  int `yaml:"polling_interval_ms"`
		BatchSize          int `yaml:"batch_size"`
		JobTimeoutSeconds  int `yaml:"job_timeout_seconds"`
	} `yaml:"worker"`

	Retry struct {
		DefaultMaxRetries     int     `yaml:"default_max_retries"`
		RetryDelayBaseSeconds float64 `yaml:"retry_delay_base_seconds"`
	} `yaml:"retry"`

	Recovery struct {
		Enabled              bool `yaml:"enabled"`
		CheckIntervalSeconds int  `yaml:"check_interval_seconds"`
	} `yaml:"recovery"`

	Store struct {
		// Backend selects which internal/store implementation to run
		// against: "local", "durable" (local + WAL/snapshot), or "shared"
		// (Redis).
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	WAL struct {
		Dir             string `yaml:"dir"`
		BufferSize      int    `yaml:"buffer_size"`
		FlushIntervalMs int    `yaml:"flush_interval_ms"`
	} `yaml:"wal"`

	Snapshot struct {
		// Dir is not read: the durable store writes snapshot.json into
		// WAL.Dir. IntervalSeconds is the run command's checkpoint period.
		Dir             string `yaml:"dir"`
		IntervalSeconds int    `yaml:"interval_seconds"`
	} `yaml:"snapshot"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	HTTP struct {
		Port            int    `yaml:"port"`
		JobIDHeaderName string `yaml:"job_id_header_name"`
	} `yaml:"http"`
}

// Default returns the configuration used when no file is supplied, mirroring
// the teacher's configs/default.yaml values where a spec.md analogue exists.
func Default() *Config {
	var cfg Config
	cfg.Worker.MaximumConcurrency = 10
	cfg.Worker.MaximumQueueSize = 100
	cfg.Worker.PollingIntervalMs = 200
	cfg.Worker.BatchSize = 10
	cfg.Worker.JobTimeoutSeconds = 30
	cfg.Retry.DefaultMaxRetries = 3
	cfg.Retry.RetryDelayBaseSeconds = 2
	cfg.Recovery.Enabled = false
	cfg.Recovery.CheckIntervalSeconds = 300
	cfg.Store.Backend = "local"
	cfg.WAL.Dir = "data/wal"
	cfg.WAL.BufferSize = 256
	cfg.WAL.FlushIntervalMs = 100
	cfg.Snapshot.Dir = "data/snapshot"
	cfg.Snapshot.IntervalSeconds = 60
	cfg.Redis.Addr = "localhost:6379"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	cfg.HTTP.Port = 8080
	cfg.HTTP.JobIDHeaderName = "X-Job-Id"
	return &cfg
}

// Load reads and parses a YAML config file at path, starting from Default()
// so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}

// PollingInterval converts the millisecond tunable to a time.Duration.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Worker.PollingIntervalMs) * time.Millisecond
}

// JobTimeout converts the second tunable to a time.Duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Worker.JobTimeoutSeconds) * time.Second
}

// RecoveryCheckInterval converts the second tunable to a time.Duration.
func (c *Config) RecoveryCheckInterval() time.Duration {
	return time.Duration(c.Recovery.CheckIntervalSeconds) * time.Second
}

// FlushInterval converts the WAL millisecond tunable to a time.Duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.WAL.FlushIntervalMs) * time.Millisecond
}

// SnapshotInterval converts the snapshot second tunable to a time.Duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Snapshot.IntervalSeconds) * time.Second
}

// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "300ms" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration.
type Config struct {
	// Socket is the unix socket path the RPC gateway listens on.
	Socket string `yaml:"socket"`

	// WMSocket is the WM IPC socket. Empty means discover via
	// $SWAYSOCK / $I3SOCK.
	WMSocket string `yaml:"wm_socket,omitempty"`

	// RegistrySocket is the project/app registry socket. Empty disables
	// enrichment lookups (events carry the degraded marker).
	RegistrySocket string `yaml:"registry_socket,omitempty"`

	Buffer      BufferConfig      `yaml:"buffer"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Enrichment  EnrichmentConfig  `yaml:"enrichment"`
	Traces      TracesConfig      `yaml:"traces"`
}

// BufferConfig tunes the circular event buffer.
type BufferConfig struct {
	// Capacity is the number of events retained. 0 means 500.
	Capacity int `yaml:"capacity"`
}

// CorrelationConfig tunes the chain-grouping heuristics. Both values
// are empirically tuned against representative bursts (a project
// switch produces 5-10 events); see the correlate package for the
// defaults' rationale.
type CorrelationConfig struct {
	// JoinWindow is how long after a chain's last event a new event may
	// still join it. 0 means 300ms.
	JoinWindow Duration `yaml:"join_window,omitempty"`

	// CloseTimeout is the inactivity period after which a chain stops
	// accepting members. 0 means 2s.
	CloseTimeout Duration `yaml:"close_timeout,omitempty"`
}

// EnrichmentConfig tunes registry lookups.
type EnrichmentConfig struct {
	// Budget is the hard per-event lookup timeout. 0 means 20ms.
	Budget Duration `yaml:"budget,omitempty"`
}

// TracesConfig configures the trace manager.
type TracesConfig struct {
	// DefaultTimeout applies to traces whose template sets none.
	// 0 means 30s.
	DefaultTimeout Duration `yaml:"default_timeout,omitempty"`

	// TemplatesPath is the YAML trace template catalog. Empty means no
	// templates are available (ad-hoc traces still work).
	TemplatesPath string `yaml:"templates_path,omitempty"`

	// MaxCaptured bounds each trace's capture list. 0 means 500.
	MaxCaptured int `yaml:"max_captured,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Socket: defaultSocketPath(),
	}
}

// defaultSocketPath places the gateway socket under $XDG_RUNTIME_DIR
// when available, falling back to /tmp for bare environments.
func defaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir + "/sightline/gateway.sock"
	}
	return "/tmp/sightline-gateway.sock"
}

// Load reads and validates a config file. An empty path returns
// Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket must not be empty")
	}
	if c.Buffer.Capacity < 0 {
		return fmt.Errorf("buffer.capacity must not be negative")
	}
	if c.Correlation.JoinWindow < 0 || c.Correlation.CloseTimeout < 0 {
		return fmt.Errorf("correlation durations must not be negative")
	}
	if c.Correlation.JoinWindow > 0 && c.Correlation.CloseTimeout > 0 &&
		c.Correlation.JoinWindow.Std() > c.Correlation.CloseTimeout.Std() {
		return fmt.Errorf("correlation.join_window must not exceed correlation.close_timeout")
	}
	if c.Enrichment.Budget < 0 {
		return fmt.Errorf("enrichment.budget must not be negative")
	}
	if c.Traces.DefaultTimeout < 0 {
		return fmt.Errorf("traces.default_timeout must not be negative")
	}
	if c.Traces.MaxCaptured < 0 {
		return fmt.Errorf("traces.max_captured must not be negative")
	}
	return nil
}

// Package config loads and validates the inferd daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete inferd configuration
type Config struct {
	InstanceID string          `yaml:"instance_id"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Source     SourceConfig    `yaml:"source"`
	Detector   DetectorConfig  `yaml:"detector"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// SchedulerConfig contains slot pool and policy settings
type SchedulerConfig struct {
	// ThroughputSlots is the Throughput policy's slot capacity.
	// 0 = one slot per logical CPU.
	ThroughputSlots int `yaml:"throughput_slots"`
	// InitialMode selects the policy active at startup: "throughput"
	// (default) or "low-latency".
	InitialMode string `yaml:"initial_mode"`
}

// SourceConfig contains the synthetic frame source settings
type SourceConfig struct {
	FPS        float64 `yaml:"fps"`        // target publish rate
	Frames     int     `yaml:"frames"`     // frames per loop (0 = unbounded)
	Loops      int     `yaml:"loops"`      // stream repetitions (default 1)
	Resolution string  `yaml:"resolution"` // 512p, 720p, 1080p
}

// DetectorConfig contains the mock SSD detector settings
type DetectorConfig struct {
	LatencyMS  int     `yaml:"latency_ms"` // simulated inference time per frame
	JitterMS   int     `yaml:"jitter_ms"`  // +/- random spread on latency
	Confidence float64 `yaml:"confidence"` // detections below are discarded
	LabelsPath string  `yaml:"labels_path"`
}

// Latency returns the simulated inference time as a duration.
func (d DetectorConfig) Latency() time.Duration {
	return time.Duration(d.LatencyMS) * time.Millisecond
}

// Jitter returns the latency spread as a duration.
func (d DetectorConfig) Jitter() time.Duration {
	return time.Duration(d.JitterMS) * time.Millisecond
}

// MQTTConfig contains detection emission settings
type MQTTConfig struct {
	Enabled bool   `yaml:"enabled"`
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`
	QoS     byte   `yaml:"qos"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads, parses, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

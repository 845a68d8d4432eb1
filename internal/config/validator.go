package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills defaults in place.
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		cfg.InstanceID = "inferd"
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Scheduler
	if cfg.Scheduler.ThroughputSlots < 0 {
		return fmt.Errorf("scheduler.throughput_slots must be >= 0")
	}
	switch cfg.Scheduler.InitialMode {
	case "":
		cfg.Scheduler.InitialMode = "throughput"
	case "throughput", "low-latency":
	default:
		return fmt.Errorf("scheduler.initial_mode must be throughput or low-latency, got %q", cfg.Scheduler.InitialMode)
	}

	// Source
	if cfg.Source.FPS <= 0 {
		cfg.Source.FPS = 30 // default
	}
	if cfg.Source.Frames < 0 {
		return fmt.Errorf("source.frames must be >= 0")
	}
	if cfg.Source.Loops <= 0 {
		cfg.Source.Loops = 1
	}
	switch cfg.Source.Resolution {
	case "":
		cfg.Source.Resolution = "720p"
	case "512p", "720p", "1080p":
	default:
		return fmt.Errorf("source.resolution must be 512p, 720p or 1080p, got %q", cfg.Source.Resolution)
	}

	// Detector
	if cfg.Detector.LatencyMS < 0 || cfg.Detector.JitterMS < 0 {
		return fmt.Errorf("detector latency/jitter must be >= 0")
	}
	if cfg.Detector.LatencyMS == 0 {
		cfg.Detector.LatencyMS = 25
	}
	if cfg.Detector.Confidence < 0 || cfg.Detector.Confidence > 1 {
		return fmt.Errorf("detector.confidence must be within [0,1]")
	}
	if cfg.Detector.Confidence == 0 {
		cfg.Detector.Confidence = 0.5
	}

	// MQTT
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt.enabled")
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("zoo/detections/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Metrics
	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}

	return nil
}

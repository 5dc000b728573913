// Package config defines the engine's tunable configuration surface and
// loads it from defaults, an optional YAML file, and environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration for the ALNS engine and its driver.
type Config struct {
	App     AppConfig     `koanf:"app"`
	Engine  EngineConfig  `koanf:"engine"`
	Rolling RollingConfig `koanf:"rolling"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// AppConfig holds general application metadata.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
}

// EngineConfig controls the SA-ALNS outer loop (spec §4.7).
type EngineConfig struct {
	// InitialAcceptanceProbability is the probability of accepting a 5%
	// worsening move at T0; T0 is derived from it and the initial cost.
	InitialAcceptanceProbability float64       `koanf:"initial_acceptance_probability"`
	CoolingFactor                float64       `koanf:"cooling_factor"`             // alpha in (0,1)
	MinTemperature               float64       `koanf:"min_temperature"`            // T_min
	MaxIterations                int           `koanf:"max_iterations"`             // N_iter
	SegmentLength                int           `koanf:"segment_length"`             // L
	ReheatingFactor              float64       `koanf:"reheating_factor"`           // beta > 1
	ReheatingTriggerSegments     int           `koanf:"reheating_trigger_segments"` // k
	ReactionRate                 float64       `koanf:"reaction_rate"`              // r in (0,1]
	EnableLocalSearch            bool          `koanf:"enable_local_search"`
	RandomSeed                   int64         `koanf:"random_seed"`
	Timeout                      time.Duration `koanf:"timeout"`
}

// RollingConfig controls the rolling-horizon driver (spec §4.8).
type RollingConfig struct {
	HorizonLength int `koanf:"horizon_length"` // h
	Rollovers     int `koanf:"rollovers"`       // R
}

// LogConfig controls the process-wide logger.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`     // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// Validate checks the configuration for internally-consistent values and
// returns an aggregated error describing every violation found.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.CoolingFactor <= 0 || c.Engine.CoolingFactor >= 1 {
		errs = append(errs, fmt.Sprintf("engine.cooling_factor must be in (0,1), got %v", c.Engine.CoolingFactor))
	}
	if c.Engine.MaxIterations <= 0 {
		errs = append(errs, "engine.max_iterations must be positive")
	}
	if c.Engine.SegmentLength <= 0 {
		errs = append(errs, "engine.segment_length must be positive")
	}
	if c.Engine.ReheatingFactor <= 1 {
		errs = append(errs, fmt.Sprintf("engine.reheating_factor must be > 1, got %v", c.Engine.ReheatingFactor))
	}
	if c.Engine.ReactionRate <= 0 || c.Engine.ReactionRate > 1 {
		errs = append(errs, fmt.Sprintf("engine.reaction_rate must be in (0,1], got %v", c.Engine.ReactionRate))
	}
	if c.Engine.InitialAcceptanceProbability <= 0 || c.Engine.InitialAcceptanceProbability >= 1 {
		errs = append(errs, "engine.initial_acceptance_probability must be in (0,1)")
	}

	if c.Rolling.HorizonLength < 0 {
		errs = append(errs, "rolling.horizon_length must be non-negative")
	}
	if c.Rolling.Rollovers < 0 {
		errs = append(errs, "rolling.rollovers must be non-negative")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

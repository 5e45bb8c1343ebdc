// Package config resolves the logging pipeline configuration from
// layered sources: built-in defaults, the environment tier, an
// optional YAML file, LOGFAN_* environment variables and programmatic
// overrides, applied in that order with later layers winning.
package config

import (
	"time"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/redact"
	"github.com/DeBrosOfficial/logfan/pkg/rollout"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"

	RoleClient = "client"
	RoleServer = "server"
)

// Config is the fully resolved pipeline configuration.
type Config struct {
	Environment string `yaml:"environment"` // development, staging, production
	Role        string `yaml:"role"`        // client, server

	Levels   LevelsConfig   `yaml:"levels"`
	Features FeaturesConfig `yaml:"features"`
	Console  ConsoleConfig  `yaml:"console"`
	HTTP     HTTPConfig     `yaml:"http"`
	File     FileConfig     `yaml:"file"`
	Tracking TrackingConfig `yaml:"tracking"`
	Redact   RedactConfig   `yaml:"redact"`
	Rollout  RolloutConfig  `yaml:"rollout"`
}

// MinLevel returns the level floor for this process role.
func (c *Config) MinLevel() logging.Level {
	raw := c.Levels.Client
	if c.Role == RoleServer {
		raw = c.Levels.Server
	}
	lvl, err := logging.ParseLevel(raw)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}

// Gate returns the rollout gate described by this config.
func (c *Config) Gate() rollout.Gate {
	return rollout.Gate{
		Percentage:  c.Rollout.Percentage,
		Components:  c.Rollout.Components,
		CanaryUsers: c.Rollout.CanaryUsers,
	}
}

// Redactor builds the redactor described by this config.
func (c *Config) Redactor() *redact.Redactor {
	return redact.New(redact.Config{
		MaxDepth:     c.Redact.MaxDepth,
		MaxStringLen: c.Redact.MaxStringLen,
		MaxArrayLen:  c.Redact.MaxArrayLen,
		ExtraFields:  c.Redact.ExtraFields,
	})
}

// DefaultConfig returns the built-in defaults, before any tier or
// override is applied.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Role:        RoleClient,
		Levels: LevelsConfig{
			Client: "debug",
			Server: "debug",
		},
		Features: FeaturesConfig{
			Console:       true,
			File:          false,
			ErrorTracking: false,
			Monitoring:    true,
		},
		Console: ConsoleConfig{
			Colors: ColorsAuto,
		},
		HTTP: HTTPConfig{
			BatchSize:     10,
			FlushInterval: Duration(5 * time.Second),
			MaxRetries:    3,
		},
		File: FileConfig{
			MaxSize:   10 << 20,
			MaxFiles:  5,
			QueueSize: 1024,
		},
		Tracking: TrackingConfig{
			SampleRate:      1,
			BreadcrumbLimit: 30,
		},
		Redact: RedactConfig{
			MaxDepth:     10,
			MaxStringLen: 10000,
			MaxArrayLen:  100,
		},
		Rollout: RolloutConfig{
			Percentage: 100,
		},
	}
}

// tierOverlay returns the per-environment adjustments layered over the
// defaults. Unknown tiers fall back to development behavior.
func tierOverlay(env string) map[string]any {
	switch env {
	case EnvStaging:
		return map[string]any{
			"levels": map[string]any{"client": "info", "server": "debug"},
			"features": map[string]any{
				"console": true, "file": true, "error_tracking": true, "monitoring": true,
			},
		}
	case EnvProduction:
		return map[string]any{
			"levels": map[string]any{"client": "warn", "server": "info"},
			"features": map[string]any{
				"console": true, "file": true, "error_tracking": true, "monitoring": true,
			},
			"console": map[string]any{"colors": ColorsNever},
		}
	default:
		return map[string]any{
			"levels": map[string]any{"client": "debug", "server": "debug"},
		}
	}
}

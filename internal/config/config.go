// Package config loads the YAML configuration for the fusion service and
// its offline tooling. Every section has working defaults; a missing file
// means defaults, a malformed file is an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"prism/internal/fusion"
	"prism/internal/labelstore"
	"prism/internal/reliability"
	"prism/internal/verify"
)

// Paths locates the on-disk artifacts.
type Paths struct {
	CalibrationModel string `yaml:"calibration_model"`
	ArtifactDir      string `yaml:"artifact_dir"`
	HardCases        string `yaml:"hard_cases"`
	ReliabilityTable string `yaml:"reliability_table"`
	GoldDB           string `yaml:"gold_db"`
}

// Logging configures the slog setup.
type Logging struct {
	Level  string `yaml:"level"`  // debug / info / warn / error
	Format string `yaml:"format"` // text / json
}

// CalibrationTraining bounds the offline trainer.
type CalibrationTraining struct {
	IoUThreshold    float64 `yaml:"iou_threshold"`
	MinGroupSamples int     `yaml:"min_group_samples"`
}

// Config is the full configuration surface.
type Config struct {
	Logging     Logging                `yaml:"logging"`
	Paths       Paths                  `yaml:"paths"`
	Fusion      fusion.Config          `yaml:"fusion"`
	Calibration CalibrationTraining    `yaml:"calibration"`
	Verify      verify.Config          `yaml:"verify"`
	PseudoLabel labelstore.Config      `yaml:"pseudo_label"`
	VoteGate    reliability.GateConfig `yaml:"vote_gate"`
}

// Default returns the reference configuration rooted at dir.
func Default(dir string) *Config {
	cfg := &Config{
		Logging: Logging{Level: "info", Format: "text"},
		Paths: Paths{
			CalibrationModel: filepath.Join(dir, "calibration_model.json"),
			ArtifactDir:      filepath.Join(dir, "artifacts"),
			HardCases:        filepath.Join(dir, "hard_cases.ndjson"),
			ReliabilityTable: filepath.Join(dir, "reliability_table.json"),
			GoldDB:           filepath.Join(dir, "gold.db"),
		},
		Fusion:      fusion.DefaultConfig(),
		Verify:      verify.DefaultConfig(),
		PseudoLabel: labelstore.DefaultConfig(),
		VoteGate:    reliability.DefaultGateConfig(),
	}
	cfg.Verify.HardCasePath = cfg.Paths.HardCases
	return cfg
}

// Load reads a YAML config file over the defaults. An empty path or a
// missing file yields the defaults for dir.
func Load(path, dir string) (*Config, error) {
	cfg := Default(dir)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Verify.HardCasePath == "" {
		cfg.Verify.HardCasePath = cfg.Paths.HardCases
	}
	return cfg, nil
}

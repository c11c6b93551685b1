package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cgmatch/internal/match"
)

const (
	defaultConfigPath = "~/.config/cgmatch/config.json"
	defaultParallel   = 4
)

// Config holds user-editable settings for pair processing.
type Config struct {
	Processing Processing       `json:"processing"`
	Logging    Logging          `json:"logging"`
	Paths      Paths            `json:"paths"`
	Background Background       `json:"background"`
	Alignment  Alignment        `json:"alignment"`
	Classifier match.Thresholds `json:"classifier"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int  `json:"parallel_jobs"`
	Recursive    bool `json:"recursive"`
}

// Logging controls verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // text, json
	FileOutput bool   `json:"file_output"`
	LogDir     string `json:"log_dir"`
}

// Paths configures default input/output locations.
type Paths struct {
	DefaultInput  string `json:"default_input"`
	DefaultOutput string `json:"default_output"`
	DatabasePath  string `json:"database_path"`
}

// Background configures background detection and removal.
type Background struct {
	Color     string  `json:"color"`     // "auto", "black", "white", or "#rrggbb"
	Mode      string  `json:"mode"`      // "match" or "norm"
	Tolerance float64 `json:"tolerance"` // per-channel or luma distance, 0..255
	Detector  string  `json:"detector"`  // "histogram" or "cluster"
}

// Alignment configures the offset search.
type Alignment struct {
	Mode             string `json:"mode"` // "fast" or "precise"
	InitStep         int    `json:"init_step"`
	MinStep          int    `json:"min_step"`
	ExtScale         int    `json:"ext_scale"`
	ChannelThreshold int    `json:"channel_threshold"`
	// MinFitPercent fails a pair whose best fit falls below it. Zero accepts
	// any fit.
	MinFitPercent float64 `json:"min_fit_percent"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CGMATCH_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Processing.ParallelJobs < 1 {
		return fmt.Errorf("processing.parallel_jobs must be at least 1, got %d", c.Processing.ParallelJobs)
	}
	if c.Background.Tolerance < 0 || c.Background.Tolerance > 255 {
		return fmt.Errorf("background.tolerance must be in [0,255], got %g", c.Background.Tolerance)
	}
	switch c.Background.Mode {
	case "match", "norm":
	default:
		return fmt.Errorf("background.mode must be match or norm, got %q", c.Background.Mode)
	}
	switch c.Background.Detector {
	case "histogram", "cluster":
	default:
		return fmt.Errorf("background.detector must be histogram or cluster, got %q", c.Background.Detector)
	}
	switch c.Alignment.Mode {
	case "fast", "precise":
	default:
		return fmt.Errorf("alignment.mode must be fast or precise, got %q", c.Alignment.Mode)
	}
	if c.Alignment.InitStep < 1 || c.Alignment.MinStep < 1 {
		return fmt.Errorf("alignment steps must be at least 1")
	}
	if c.Alignment.ChannelThreshold < 0 || c.Alignment.ChannelThreshold > 255 {
		return fmt.Errorf("alignment.channel_threshold must be in [0,255], got %d", c.Alignment.ChannelThreshold)
	}
	if c.Alignment.MinFitPercent < 0 || c.Alignment.MinFitPercent > 100 {
		return fmt.Errorf("alignment.min_fit_percent must be in [0,100], got %g", c.Alignment.MinFitPercent)
	}
	if c.Classifier.BaseEffectiveRatio <= 0 || c.Classifier.BaseEffectiveRatio > 1 {
		return fmt.Errorf("classifier.base_effective_ratio must be in (0,1], got %g", c.Classifier.BaseEffectiveRatio)
	}
	if c.Classifier.BaseComponentRatio <= 0 || c.Classifier.BaseComponentRatio > 1 {
		return fmt.Errorf("classifier.base_component_ratio must be in (0,1], got %g", c.Classifier.BaseComponentRatio)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Processing: Processing{
			ParallelJobs: defaultParallel,
			Recursive:    true,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DefaultInput:  ".",
			DefaultOutput: "./output",
			DatabasePath:  filepath.Join(os.TempDir(), "cgmatch.db"),
		},
		Background: Background{
			Color:     "auto",
			Mode:      "match",
			Tolerance: 10,
			Detector:  "histogram",
		},
		Alignment: Alignment{
			Mode:             "fast",
			InitStep:         20,
			MinStep:          1,
			ExtScale:         2,
			ChannelThreshold: 30,
		},
		Classifier: match.DefaultThresholds(),
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}

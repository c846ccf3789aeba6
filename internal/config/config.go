package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/HagaiHargil/caflow/internal/analog"
	"github.com/HagaiHargil/caflow/internal/metadata"
)

// Config defines pipeline configuration.
type Config struct {
	Data   DataConfig   `yaml:"data"`
	Epochs EpochsConfig `yaml:"epochs"`
	Spikes SpikesConfig `yaml:"spikes"`
	Analog AnalogConfig `yaml:"analog"`
	Batch  BatchConfig  `yaml:"batch"`
	Log    LogConfig    `yaml:"log"`
}

type DataConfig struct {
	Root          string `yaml:"root"`
	Glob          string `yaml:"glob"`
	WithAnalog    bool   `yaml:"with_analog"`
	WithColabeled bool   `yaml:"with_colabeled"`
}

type EpochsConfig struct {
	FramesBefore int `yaml:"frames_before"`
	FramesDuring int `yaml:"frames_during"`
}

type SpikesConfig struct {
	Threshold float64 `yaml:"threshold"`
	// MinDist 0 means one second worth of frames.
	MinDist int `yaml:"min_dist"`
}

type AnalogConfig struct {
	StimHighV     float64 `yaml:"stim_high_v"`
	JuxtaLowV     float64 `yaml:"juxta_low_v"`
	RunV          float64 `yaml:"run_v"`
	StimWindowSec float64 `yaml:"stim_window_sec"`
	FallbackFPS   float64 `yaml:"fallback_fps"`
}

type BatchConfig struct {
	Workers    int    `yaml:"workers"`
	LedgerPath string `yaml:"ledger_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional YAML file and environment
// variables. Defaults match the vascular occluder rig.
func Load() (Config, error) {
	th := analog.DefaultThresholds()

	cfg := Config{
		Data: DataConfig{
			Root: ".",
			Glob: "*.tif",
		},
		Epochs: EpochsConfig{
			FramesBefore: 1000,
			FramesDuring: 1000,
		},
		Spikes: SpikesConfig{
			Threshold: 0.65,
		},
		Analog: AnalogConfig{
			StimHighV:     th.StimHighV,
			JuxtaLowV:     th.JuxtaLowV,
			RunV:          th.RunV,
			StimWindowSec: th.StimWindowSec,
			FallbackFPS:   metadata.DefaultFPS,
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("CAFLOW_CONFIG_PATH"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if root := os.Getenv("CAFLOW_DATA_ROOT"); root != "" {
		cfg.Data.Root = root
	}
	if glob := os.Getenv("CAFLOW_DATA_GLOB"); glob != "" {
		cfg.Data.Glob = glob
	}
	if workersStr := os.Getenv("CAFLOW_WORKERS"); workersStr != "" {
		workers, err := strconv.Atoi(workersStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CAFLOW_WORKERS: %w", err)
		}
		cfg.Batch.Workers = workers
	}
	if path := os.Getenv("CAFLOW_LEDGER_PATH"); path != "" {
		cfg.Batch.LedgerPath = path
	}
	if level := os.Getenv("CAFLOW_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

// LoadFile merges the YAML file at path over cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

// Thresholds assembles the analog mask thresholds.
func (c Config) Thresholds() analog.Thresholds {
	return analog.Thresholds{
		StimHighV:     c.Analog.StimHighV,
		JuxtaLowV:     c.Analog.JuxtaLowV,
		RunV:          c.Analog.RunV,
		StimWindowSec: c.Analog.StimWindowSec,
	}
}

// SlogLevel maps the configured level name onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

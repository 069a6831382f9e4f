// Package config loads pipeline settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ortelius/vuln2rev-mapper/util"
	yaml "gopkg.in/yaml.v2"
)

// DefaultEcosystems is the feed list used when no settings file names one.
var DefaultEcosystems = []string{"npm", "PyPI", "Go", "Maven", "RubyGems", "crates.io", "Packagist"}

// Config holds the runtime settings for the service and the batch pipeline.
type Config struct {
	Ecosystems   []string      `yaml:"ecosystems"`
	Workers      int           `yaml:"workers"`
	RepoCacheDir string        `yaml:"repo_cache_dir"`
	StateDir     string        `yaml:"state_dir"`
	OSVDataDir   string        `yaml:"osv_data_dir"`
	LinguistCmd  string        `yaml:"linguist_cmd"`
	TaskTimeout  time.Duration `yaml:"-"`
	KafkaBrokers []string      `yaml:"-"`
	KafkaTopic   string        `yaml:"kafka_topic"`

	// raw YAML forms for fields that need parsing
	TaskTimeoutRaw string `yaml:"task_timeout"`
}

// Load reads the optional settings file named by SETTINGS_PATH (or the given
// path) and applies environment overrides on top. A missing file is not an
// error; everything has a default.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Ecosystems:   DefaultEcosystems,
		Workers:      runtime.NumCPU(),
		RepoCacheDir: "/tmp/repocache",
		StateDir:     "/tmp/vuln2rev",
		OSVDataDir:   "/tmp/vuln2rev/osv",
		LinguistCmd:  "github-linguist",
		TaskTimeout:  10 * time.Minute,
		KafkaTopic:   "revision-events",
	}

	if path == "" {
		path = util.GetEnvDefault("SETTINGS_PATH", "")
	}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("read settings file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse settings file %s: %w", path, err)
		}
		if cfg.TaskTimeoutRaw != "" {
			d, err := time.ParseDuration(cfg.TaskTimeoutRaw)
			if err != nil {
				return nil, fmt.Errorf("parse task_timeout %q: %w", cfg.TaskTimeoutRaw, err)
			}
			cfg.TaskTimeout = d
		}
	}

	applyEnvOverrides(cfg)

	if len(cfg.Ecosystems) == 0 {
		cfg.Ecosystems = DefaultEcosystems
	}
	cfg.Ecosystems = util.NormalizeEcosystems(cfg.Ecosystems)
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := util.GetEnvDefault("PIPELINE_WORKERS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := util.GetEnvDefault("REPO_CACHE_DIR", ""); v != "" {
		cfg.RepoCacheDir = v
	}
	if v := util.GetEnvDefault("STATE_DIR", ""); v != "" {
		cfg.StateDir = v
	}
	if v := util.GetEnvDefault("OSV_DATA_DIR", ""); v != "" {
		cfg.OSVDataDir = v
	}
	if v := util.GetEnvDefault("LINGUIST_CMD", ""); v != "" {
		cfg.LinguistCmd = v
	}
	if v := util.GetEnvDefault("TASK_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskTimeout = d
		}
	}
	if v := util.GetEnvDefault("OSV_ECOSYSTEMS", ""); v != "" {
		cfg.Ecosystems = strings.Split(v, ",")
	}
	if v := util.GetEnvDefault("KAFKA_BROKERS", ""); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := util.GetEnvDefault("KAFKA_TOPIC", ""); v != "" {
		cfg.KafkaTopic = v
	}
}

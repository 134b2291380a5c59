// Package config loads the devrun configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up in the working directory.
const DefaultFileName = "devrun.yaml"

// Script phases.
const (
	WhenSetUp    = "setUp"
	WhenTearDown = "tearDown"
)

// Config is the devrun configuration.
type Config struct {
	// Path of the adb binary
	ADBPath string `yaml:"adb_path"`
	// Path of the ffmpeg binary used to merge recordings
	FFmpegPath string `yaml:"ffmpeg_path"`
	// Host shell family, empty to detect it
	Host string `yaml:"host"`
	// Command running one case file, may use {case}, {serial} and {adb}
	CaseCommand string `yaml:"case_command"`
	// Directory result folders are created in
	ResultsRoot string `yaml:"results_root"`
	// Upper bound of each screen recording
	RecordTimeout time.Duration `yaml:"record_timeout"`
	// Time between two snapshots of a running case
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	// Scale factor of GIF frames
	FrameScale float64 `yaml:"frame_scale"`
	// Scripts run on the device before and after the cases
	DeviceScripts []DeviceScript `yaml:"device_scripts"`
}

// DeviceScript is a command run before (setUp) or after (tearDown) a run.
type DeviceScript struct {
	Name    string `yaml:"name"`
	When    string `yaml:"when"`
	Command string `yaml:"command"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ADBPath:          "adb",
		FFmpegPath:       "ffmpeg",
		ResultsRoot:      "devrun-results",
		RecordTimeout:    3 * time.Minute,
		SnapshotInterval: 5 * time.Second,
		FrameScale:       0.3,
	}
}

// Load reads the configuration at path over the defaults. A missing file
// is not an error when optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values devrun cannot run with.
func (c *Config) Validate() error {
	if c.FrameScale <= 0 || c.FrameScale > 1 {
		return fmt.Errorf("frame_scale must be in (0, 1], got %v", c.FrameScale)
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot_interval must be positive")
	}
	for i, s := range c.DeviceScripts {
		if s.When != WhenSetUp && s.When != WhenTearDown {
			return fmt.Errorf("device_scripts[%d]: when must be %s or %s, got %q", i, WhenSetUp, WhenTearDown, s.When)
		}
		if s.Command == "" {
			return fmt.Errorf("device_scripts[%d]: command is empty", i)
		}
	}
	return nil
}

// Scripts returns the device scripts of phase when, in file order.
func (c *Config) Scripts(when string) []DeviceScript {
	var scripts []DeviceScript
	for _, s := range c.DeviceScripts {
		if s.When == when {
			scripts = append(scripts, s)
		}
	}
	return scripts
}

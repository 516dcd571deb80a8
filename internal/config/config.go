package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	Dir      = ".simmatrix"
	FileName = "config.json"

	// EnvPrefix prefixes every environment override, e.g. SIMMATRIX_BAUD_RATE.
	EnvPrefix = "SIMMATRIX"

	DefaultDocument        = "configurations.json"
	DefaultCodegenTarget   = "include/generated_serial_config.h"
	DefaultSimTarget       = "sim"
	DefaultSimArtifact     = "sim_bin"
	DefaultSimBinary       = "sim_bin"
	DefaultMarker          = "sim/pty_slave.txt"
	DefaultPIDFile         = "sim/sim.pid"
	DefaultSimLog          = "sim.log"
	DefaultDownloadTarget  = "download-core"
	DefaultBaudRate        = 9600
	DefaultCPUFreq         = "16000000"
	DefaultLogLevel        = "warn"
	DefaultBuildTimeout    = 120 * time.Second
	DefaultStartTimeout    = 5 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultStopGrace       = 2 * time.Second
	DefaultProbeWindow     = time.Second
	DefaultProbeIdle       = 50 * time.Millisecond
	DefaultProbeSettle     = 200 * time.Millisecond
	DefaultOpenRetryWindow = time.Second
)

// Duration is a time.Duration that reads and writes as "120s" in JSON and
// in environment variables.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Bare numbers are seconds.
		var secs float64
		if err2 := json.Unmarshal(b, &secs); err2 != nil {
			return fmt.Errorf("duration %s: %w", b, err)
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config holds all simmatrix configuration. Relative paths are resolved
// against the project root.
type Config struct {
	Make     string `json:"make,omitempty" envconfig:"MAKE"`
	Document string `json:"document,omitempty" envconfig:"DOCUMENT"`

	CodegenTarget   string `json:"codegen_target,omitempty" envconfig:"CODEGEN_TARGET"`
	CodegenArtifact string `json:"codegen_artifact,omitempty" envconfig:"CODEGEN_ARTIFACT"`
	SimTarget       string `json:"sim_target,omitempty" envconfig:"SIM_TARGET"`
	SimArtifact     string `json:"sim_artifact,omitempty" envconfig:"SIM_ARTIFACT"`
	SimBinary       string `json:"sim_binary,omitempty" envconfig:"SIM_BINARY"`
	Marker          string `json:"marker,omitempty" envconfig:"MARKER"`
	PIDFile         string `json:"pid_file,omitempty" envconfig:"PID_FILE"`
	SimLog          string `json:"sim_log,omitempty" envconfig:"SIM_LOG"`
	DownloadTarget  string `json:"download_target,omitempty" envconfig:"DOWNLOAD_TARGET"`
	SkipDownload    bool   `json:"skip_download,omitempty" envconfig:"SKIP_DOWNLOAD"`

	BaudRate int    `json:"baud_rate,omitempty" envconfig:"BAUD_RATE"`
	CPUFreq  string `json:"cpu_freq,omitempty" envconfig:"CPU_FREQ"`

	BuildTimeout    Duration `json:"build_timeout,omitempty" envconfig:"BUILD_TIMEOUT"`
	StartTimeout    Duration `json:"start_timeout,omitempty" envconfig:"START_TIMEOUT"`
	PollInterval    Duration `json:"poll_interval,omitempty" envconfig:"POLL_INTERVAL"`
	StopGrace       Duration `json:"stop_grace,omitempty" envconfig:"STOP_GRACE"`
	ProbeWindow     Duration `json:"probe_window,omitempty" envconfig:"PROBE_WINDOW"`
	ProbeIdle       Duration `json:"probe_idle,omitempty" envconfig:"PROBE_IDLE"`
	ProbeSettle     Duration `json:"probe_settle,omitempty" envconfig:"PROBE_SETTLE"`
	OpenRetryWindow Duration `json:"open_retry_window,omitempty" envconfig:"OPEN_RETRY_WINDOW"`

	Limit    int    `json:"limit,omitempty" envconfig:"LIMIT"`
	LogLevel string `json:"log_level,omitempty" envconfig:"LOG_LEVEL"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Make:            "make",
		Document:        DefaultDocument,
		CodegenTarget:   DefaultCodegenTarget,
		CodegenArtifact: DefaultCodegenTarget,
		SimTarget:       DefaultSimTarget,
		SimArtifact:     DefaultSimArtifact,
		SimBinary:       DefaultSimBinary,
		Marker:          DefaultMarker,
		PIDFile:         DefaultPIDFile,
		SimLog:          DefaultSimLog,
		DownloadTarget:  DefaultDownloadTarget,
		BaudRate:        DefaultBaudRate,
		CPUFreq:         DefaultCPUFreq,
		BuildTimeout:    Duration{DefaultBuildTimeout},
		StartTimeout:    Duration{DefaultStartTimeout},
		PollInterval:    Duration{DefaultPollInterval},
		StopGrace:       Duration{DefaultStopGrace},
		ProbeWindow:     Duration{DefaultProbeWindow},
		ProbeIdle:       Duration{DefaultProbeIdle},
		ProbeSettle:     Duration{DefaultProbeSettle},
		OpenRetryWindow: Duration{DefaultOpenRetryWindow},
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads and merges global and project configs, then applies
// environment overrides.
// Order: defaults → global (~/.config/simmatrix/config.json) → project
// (.simmatrix/config.json) → SIMMATRIX_* environment.
func Load(projectRoot string) (Config, error) {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".config", "simmatrix", FileName)
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return cfg, err
		}
	}

	if projectRoot != "" {
		if err := mergeFromFile(&cfg, filepath.Join(projectRoot, Dir, FileName)); err != nil {
			return cfg, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the project .simmatrix/config.json by default,
// or to the global config if global is true.
func Save(cfg Config, projectRoot string, global bool) error {
	var dir string
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, ".config", "simmatrix")
	} else {
		dir = filepath.Join(projectRoot, Dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, FileName), data, 0o644)
}

// Resolve returns path joined to root unless it is already absolute.
func Resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}

// mergeFromFile overlays every field set in the file. A missing file is
// not an error; an unreadable or malformed one is.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Decoding into a copy keeps fields the file leaves out.
	merged := *cfg
	if err := json.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*cfg = merged
	return nil
}

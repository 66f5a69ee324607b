package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mabhi256/refwatch/internal/heapdump"
	"github.com/mabhi256/refwatch/internal/logging"
	"github.com/mabhi256/refwatch/internal/telemetry"
	"gopkg.in/yaml.v3"
)

const envPrefix = "REFWATCH_"

type Config struct {
	// Enabled false swaps in a watcher that ignores every call. It is read
	// once at startup.
	Enabled bool `yaml:"enabled"`

	Watch    WatchConfig    `yaml:"watch"`
	HeapDump HeapDumpConfig `yaml:"heap_dump"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Server   ServerConfig   `yaml:"server"`
	TUI      TUIConfig      `yaml:"tui"`
}

type WatchConfig struct {
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	AttemptsPerSecond float64       `yaml:"attempts_per_second"`
	Burst             int           `yaml:"burst"`

	// Copied into every heap dump bundle.
	ExcludedRefs            []string          `yaml:"excluded_refs"`
	ComputeRetainedHeapSize bool              `yaml:"compute_retained_heap_size"`
	Metadata                map[string]string `yaml:"metadata"`
}

type HeapDumpConfig struct {
	Dir       string `yaml:"dir"`
	Format    string `yaml:"format"` // go or pprof
	MaxStored int    `yaml:"max_stored"`
}

type AnalysisConfig struct {
	StorePath string `yaml:"store_path"`
	InMemory  bool   `yaml:"in_memory"`
	QueueSize int    `yaml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type TracingConfig struct {
	Exporter string `yaml:"exporter"` // none, stdout or otlp
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type TUIConfig struct {
	RefreshMs int `yaml:"refresh_ms"`
}

func (c *TUIConfig) GetRefreshInterval() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

func Default() Config {
	base := filepath.Join(os.TempDir(), "refwatch")
	return Config{
		Enabled: true,
		Watch: WatchConfig{
			InitialDelay:      5 * time.Second,
			MaxBackoff:        time.Hour,
			AttemptsPerSecond: 2,
			Burst:             1,
		},
		HeapDump: HeapDumpConfig{
			Dir:       filepath.Join(base, "dumps"),
			Format:    string(heapdump.FormatGo),
			MaxStored: 7,
		},
		Analysis: AnalysisConfig{
			StorePath: filepath.Join(base, "results"),
			QueueSize: 16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter: telemetry.ExporterNone,
			Endpoint: "localhost:4317",
			Insecure: true,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8089",
		},
		TUI: TUIConfig{
			RefreshMs: 500,
		},
	}
}

// Load starts from Default, applies the YAML file at path (if any), then
// REFWATCH_* environment overrides, and validates the result.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		if err := loadFile(path, &config); err != nil {
			return Config{}, err
		}
	}

	if err := loadEnv(&config); err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadEnv(config *Config) error {
	var errs []error

	boolVar := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	intVar := func(name string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = i
		}
	}
	durationVar := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	stringVar := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	boolVar("ENABLED", &config.Enabled)
	durationVar("INITIAL_DELAY", &config.Watch.InitialDelay)
	durationVar("MAX_BACKOFF", &config.Watch.MaxBackoff)
	stringVar("HEAP_DUMP_DIR", &config.HeapDump.Dir)
	stringVar("HEAP_DUMP_FORMAT", &config.HeapDump.Format)
	intVar("MAX_STORED", &config.HeapDump.MaxStored)
	stringVar("STORE_PATH", &config.Analysis.StorePath)
	boolVar("STORE_IN_MEMORY", &config.Analysis.InMemory)
	stringVar("LOG_LEVEL", &config.Log.Level)
	stringVar("LOG_FORMAT", &config.Log.Format)
	stringVar("LOG_FILE", &config.Log.File)
	stringVar("TRACE_EXPORTER", &config.Tracing.Exporter)
	stringVar("OTLP_ENDPOINT", &config.Tracing.Endpoint)
	stringVar("SERVER_ADDR", &config.Server.Addr)

	if v, ok := os.LookupEnv(envPrefix + "EXCLUDED_REFS"); ok {
		config.Watch.ExcludedRefs = splitList(v)
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error

	if c.Watch.InitialDelay < 0 {
		errs = append(errs, errors.New("watch.initial_delay must not be negative"))
	}
	if c.Watch.MaxBackoff < c.Watch.InitialDelay {
		errs = append(errs, errors.New("watch.max_backoff must be at least watch.initial_delay"))
	}
	if c.Watch.AttemptsPerSecond < 0 {
		errs = append(errs, errors.New("watch.attempts_per_second must not be negative"))
	}
	if _, err := heapdump.ParseFormat(c.HeapDump.Format); err != nil {
		errs = append(errs, fmt.Errorf("heap_dump.format: %w", err))
	}
	if c.HeapDump.Dir == "" {
		errs = append(errs, errors.New("heap_dump.dir is required"))
	}
	if c.HeapDump.MaxStored < 1 {
		errs = append(errs, errors.New("heap_dump.max_stored must be at least 1"))
	}
	if !c.Analysis.InMemory && c.Analysis.StorePath == "" {
		errs = append(errs, errors.New("analysis.store_path is required unless analysis.in_memory is set"))
	}
	if c.Analysis.QueueSize < 1 {
		errs = append(errs, errors.New("analysis.queue_size must be at least 1"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format: invalid format %q", c.Log.Format))
	}
	if !telemetry.ValidExporter(c.Tracing.Exporter) {
		errs = append(errs, fmt.Errorf("tracing.exporter: %w: %s", telemetry.ErrUnknownExporter, c.Tracing.Exporter))
	}
	if c.Tracing.Exporter == telemetry.ExporterOTLP && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required for the otlp exporter"))
	}
	if c.TUI.RefreshMs <= 0 {
		errs = append(errs, errors.New("tui.refresh_ms must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) String() string {
	if !c.Enabled {
		return "refwatch disabled"
	}
	return fmt.Sprintf("refwatch enabled (delay %s, %s dumps in %s)",
		c.Watch.InitialDelay, c.HeapDump.Format, c.HeapDump.Dir)
}

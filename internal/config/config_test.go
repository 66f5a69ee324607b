package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.True(t, c.Enabled)
	assert.Equal(t, 5*time.Second, c.Watch.InitialDelay)
	assert.Equal(t, 500*time.Millisecond, c.TUI.GetRefreshInterval())
}

func TestLoad_NoFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().HeapDump, c.HeapDump)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
enabled: false
watch:
  initial_delay: 2s
  max_backoff: 1m
  excluded_refs: [sync.Pool, http.Transport]
  metadata:
    build: "42"
heap_dump:
  dir: /var/tmp/dumps
  format: pprof
  max_stored: 3
analysis:
  in_memory: true
log:
  level: debug
  format: json
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.False(t, c.Enabled)
	assert.Equal(t, 2*time.Second, c.Watch.InitialDelay)
	assert.Equal(t, time.Minute, c.Watch.MaxBackoff)
	assert.Equal(t, []string{"sync.Pool", "http.Transport"}, c.Watch.ExcludedRefs)
	assert.Equal(t, map[string]string{"build": "42"}, c.Watch.Metadata)
	assert.Equal(t, "/var/tmp/dumps", c.HeapDump.Dir)
	assert.Equal(t, "pprof", c.HeapDump.Format)
	assert.Equal(t, 3, c.HeapDump.MaxStored)
	assert.True(t, c.Analysis.InMemory)
	assert.Equal(t, "debug", c.Log.Level)

	// untouched sections keep defaults
	assert.Equal(t, Default().Server.Addr, c.Server.Addr)
	assert.Equal(t, 16, c.Analysis.QueueSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "heap_dump:\n  format: pprof\n")
	t.Setenv("REFWATCH_ENABLED", "false")
	t.Setenv("REFWATCH_HEAP_DUMP_FORMAT", "go")
	t.Setenv("REFWATCH_INITIAL_DELAY", "250ms")
	t.Setenv("REFWATCH_EXCLUDED_REFS", "a, b,,c")
	t.Setenv("REFWATCH_TRACE_EXPORTER", "stdout")

	c, err := Load(path)
	require.NoError(t, err)

	assert.False(t, c.Enabled)
	assert.Equal(t, "go", c.HeapDump.Format)
	assert.Equal(t, 250*time.Millisecond, c.Watch.InitialDelay)
	assert.Equal(t, []string{"a", "b", "c"}, c.Watch.ExcludedRefs)
	assert.Equal(t, "stdout", c.Tracing.Exporter)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("REFWATCH_MAX_STORED", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "REFWATCH_MAX_STORED")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "watch: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "heap_dump:\n  format: hprof\n"))
	assert.ErrorContains(t, err, "heap_dump.format")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative delay", func(c *Config) { c.Watch.InitialDelay = -time.Second }, "initial_delay"},
		{"backoff below delay", func(c *Config) { c.Watch.MaxBackoff = time.Second }, "max_backoff"},
		{"no dump dir", func(c *Config) { c.HeapDump.Dir = "" }, "heap_dump.dir"},
		{"max stored", func(c *Config) { c.HeapDump.MaxStored = 0 }, "max_stored"},
		{"store path", func(c *Config) { c.Analysis.StorePath = "" }, "store_path"},
		{"queue", func(c *Config) { c.Analysis.QueueSize = 0 }, "queue_size"},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"refresh", func(c *Config) { c.TUI.RefreshMs = 0 }, "refresh_ms"},
		{"trace exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"otlp endpoint", func(c *Config) {
			c.Tracing.Exporter = "otlp"
			c.Tracing.Endpoint = ""
		}, "tracing.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestValidate_InMemoryNeedsNoStorePath(t *testing.T) {
	c := Default()
	c.Analysis.StorePath = ""
	c.Analysis.InMemory = true
	assert.NoError(t, c.Validate())
}

package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func restoreProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInit_Stdout(t *testing.T) {
	restoreProvider(t)

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		ServiceName: "refwatch-test",
		Exporter:    ExporterStdout,
		Output:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "refwatch.verify")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "refwatch.verify")
	assert.Contains(t, buf.String(), "refwatch-test")
}

func TestInit_None(t *testing.T) {
	restoreProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := Init(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInit_UnknownExporter(t *testing.T) {
	restoreProvider(t)

	shutdown, err := Init(context.Background(), Config{Exporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestValidExporter(t *testing.T) {
	for _, name := range []string{"none", "stdout", "otlp"} {
		assert.True(t, ValidExporter(name), name)
	}
	assert.False(t, ValidExporter(""))
	assert.False(t, ValidExporter("jaeger"))
}

package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/hadlocna/PaperDrop/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewProvider(config.TracingConfig{Enabled: true, SampleRatio: 1}, "paperdrop-test", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer(InstrumentationName).Start(context.Background(), "redelivery.tick")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "redelivery.tick")
	assert.Contains(t, buf.String(), "paperdrop-test")
}

func TestProviderHonoursZeroSampling(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewProvider(config.TracingConfig{Enabled: true, SampleRatio: 0}, "paperdrop-test", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer(InstrumentationName).Start(context.Background(), "dropped")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.NotContains(t, buf.String(), "dropped")
}

package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hadlocna/PaperDrop/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperdrop.log")

	logger, level, closer, err := newLogger(config.LogConfig{
		Level:      "warn",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	logger.Info("hidden")
	level.Set(slog.LevelInfo)
	logger.Info("visible")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hidden")
	assert.Contains(t, string(raw), `"msg":"visible"`)
	assert.Contains(t, string(raw), `"service":"`+ServiceName+`"`)
}

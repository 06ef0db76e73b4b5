package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/turbolytics/historian/internal/harvester"
)

func TestNewHistorianFromFile(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		historian, err := NewHistorianFromFile("../../dev/examples/historian.yml")
		require.NoError(t, err)
		assert.Equal(t, "s3://athena-history-archive/query-history", historian.Harvester.ArchiveURI)
		assert.Equal(t, "s3://athena-history-state/historian/checkpoint.json", historian.Harvester.StateURI)
		assert.Equal(t, 10000, historian.Harvester.FlushThreshold)
		assert.Equal(t, 16*time.Second, historian.Harvester.Retry.MaxDelay)
		assert.Equal(t, "us-east-1", historian.AWS.Region)
		assert.Equal(t, "debug", historian.Global.Logger.Level)
		assert.NoError(t, historian.Validate())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewHistorianFromFile(filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
	})
}

func TestLoadDefaults(t *testing.T) {
	historian, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "", historian.Harvester.ArchiveURI)
	assert.Equal(t, "", historian.Harvester.StateURI)
	assert.Equal(t, harvester.DefaultFlushThreshold, historian.Harvester.FlushThreshold)
	assert.Equal(t, 1, historian.Harvester.Parallelism)
	assert.Equal(t, time.Second, historian.Harvester.Retry.BaseDelay)
	assert.Equal(t, 16*time.Second, historian.Harvester.Retry.MaxDelay)
	assert.Equal(t, 0, historian.Harvester.Retry.MaxAttempts)
	assert.Equal(t, "info", historian.Global.Logger.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "historian.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
harvester:
  archive_uri: s3://from-file/history
  flush_threshold: 500
`), 0644))

	t.Setenv("HISTORIAN_HARVESTER_ARCHIVE_URI", "s3://from-env/history")
	t.Setenv("HISTORIAN_HARVESTER_STATE_URI", "s3://from-env/state.json")
	t.Setenv("HISTORIAN_HARVESTER_RETRY_MAX_ATTEMPTS", "12")

	historian, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "s3://from-env/history", historian.Harvester.ArchiveURI)
	assert.Equal(t, "s3://from-env/state.json", historian.Harvester.StateURI)
	assert.Equal(t, 500, historian.Harvester.FlushThreshold)
	assert.Equal(t, 12, historian.Harvester.Retry.MaxAttempts)
}

func TestValidate(t *testing.T) {
	valid := func() *Historian {
		return &Historian{
			Harvester: Harvester{
				ArchiveURI:     "s3://archive/history",
				FlushThreshold: 100,
				Parallelism:    1,
			},
		}
	}

	cases := []struct {
		name  string
		mod   func(*Historian)
		field string
	}{
		{"missing archive", func(h *Historian) { h.Harvester.ArchiveURI = "" }, "harvester.archive_uri"},
		{"bad archive scheme", func(h *Historian) { h.Harvester.ArchiveURI = "gs://archive" }, "harvester.archive_uri"},
		{"bad state scheme", func(h *Historian) { h.Harvester.StateURI = "ftp://state" }, "harvester.state_uri"},
		{"zero flush threshold", func(h *Historian) { h.Harvester.FlushThreshold = 0 }, "harvester.flush_threshold"},
		{"zero parallelism", func(h *Historian) { h.Harvester.Parallelism = 0 }, "harvester.parallelism"},
	}

	assert.NoError(t, valid().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := valid()
			tc.mod(h)

			var cerr *harvester.ConfigurationError
			require.True(t, errors.As(h.Validate(), &cerr))
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestYAML(t *testing.T) {
	historian, err := NewHistorianFromFile("../../dev/examples/historian.yml")
	require.NoError(t, err)

	bs, err := historian.YAML()
	require.NoError(t, err)

	var roundTrip map[string]any
	require.NoError(t, yaml.Unmarshal(bs, &roundTrip))
	h := roundTrip["harvester"].(map[string]any)
	assert.Equal(t, "s3://athena-history-archive/query-history", h["archive_uri"])
	assert.Equal(t, "1s", h["retry"].(map[string]any)["base_delay"])
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(Logger{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(Logger{Level: "loud"})
	assert.Error(t, err)
}

func TestInitializeHarvester(t *testing.T) {
	ctx := context.Background()

	t.Run("missing archive fails before wiring", func(t *testing.T) {
		_, err := InitializeHarvester(ctx, &Historian{}, zaptest.NewLogger(t))

		var cerr *harvester.ConfigurationError
		assert.True(t, errors.As(err, &cerr))
	})

	t.Run("local destinations", func(t *testing.T) {
		dir := t.TempDir()
		h, err := InitializeHarvester(ctx, &Historian{
			Harvester: Harvester{
				ArchiveURI:     "file://" + filepath.Join(dir, "archive"),
				StateURI:       "file://" + filepath.Join(dir, "state.json"),
				FlushThreshold: 100,
				Parallelism:    1,
			},
			AWS: AWS{Region: "us-east-1"},
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, h)
	})
}

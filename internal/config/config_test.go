package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "extract.db", cfg.Store.Path)
	assert.Equal(t, "models", cfg.Models.Dir)
	assert.Equal(t, "templates", cfg.Templates.Dir)
	assert.Equal(t, "docs", cfg.Docs.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, 3, cfg.Align.Lookahead)
	assert.InDelta(t, 0.1, cfg.Align.SkipPenalty, 0.0001)
	assert.InDelta(t, 0.65, cfg.Align.MinScore, 0.0001)
	assert.InDelta(t, 0.8, cfg.Align.FuzzyMinSimilarity, 0.0001)

	assert.InDelta(t, 0.35, cfg.Scorer.New.Confidence, 0.0001)
	assert.InDelta(t, 0.25, cfg.Scorer.New.Prior, 0.0001)
	assert.InDelta(t, 0.40, cfg.Scorer.New.Performance, 0.0001)
	assert.InDelta(t, 0.20, cfg.Scorer.Established.Confidence, 0.0001)
	assert.InDelta(t, 0.70, cfg.Scorer.Established.Performance, 0.0001)
	assert.InDelta(t, 0.15, cfg.Scorer.Proven.Confidence, 0.0001)
	assert.InDelta(t, 0.80, cfg.Scorer.Proven.Performance, 0.0001)
	assert.Equal(t, []string{"crf", "positional"}, cfg.Scorer.Precedence)
	assert.InDelta(t, 0.5, cfg.Scorer.Priors["crf"], 0.0001)

	assert.InDelta(t, 0.8, cfg.Training.SplitRatio, 0.0001)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 10, cfg.Training.MinExamples)
	assert.Equal(t, 12, cfg.Training.Epochs)
}

func TestLoad_ConfigFileOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte(`
store:
  driver: postgres
  database_url: postgres://localhost/extract
align:
  lookahead: 5
training:
  min_examples: 25
`), 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/extract", cfg.Store.DatabaseURL)
	assert.Equal(t, 5, cfg.Align.Lookahead)
	assert.Equal(t, 25, cfg.Training.MinExamples)
	// Unset keys keep their defaults.
	assert.InDelta(t, 0.65, cfg.Align.MinScore, 0.0001)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("EXTRACT_STORE_PATH", "/tmp/other.db")
	t.Setenv("EXTRACT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}

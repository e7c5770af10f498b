package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashcards/internal/queue"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "flashcards.db", cfg.DB)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "fsrs", cfg.Scheduler.Algorithm)
	assert.InDelta(t, 0.9, cfg.Scheduler.Retention, 1e-9)
	assert.True(t, cfg.Scheduler.ShortTerm)
	assert.Equal(t, 10, cfg.Undo.Depth)
	assert.Equal(t, ",", cfg.Import.Separator)
	assert.Equal(t, queue.Simple, cfg.QueueMode())
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashcards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: from-file.db
log:
  level: debug
undo:
  depth: 4
scheduler:
  algorithm: simple
`), 0o644))

	t.Setenv("FLASHCARDS_CONFIG", path)
	t.Setenv("FLASHCARDS_UNDO_DEPTH", "6")
	t.Setenv("FLASHCARDS_REPOS_DIR", "/tmp/repos")

	cfg, err := load(t, "--log-level=warn")
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 6, cfg.Undo.Depth)
	assert.Equal(t, "simple", cfg.Scheduler.Algorithm)
	assert.Equal(t, "/tmp/repos", cfg.ReposDir)

	sched, err := cfg.NewScheduler()
	require.NoError(t, err)
	assert.Equal(t, "simple", sched.Algorithm().Name())
}

func TestLoadRejectsInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"--undo-depth=11"},
		{"--undo-depth=0"},
		{"--retention=1.5"},
		{"--separator=;;"},
		{"--algorithm=sm2"},
		{"--log-format=xml"},
		{"--timezone=Mars/Olympus"},
	} {
		_, err := load(t, args...)
		assert.Error(t, err, "args %v", args)
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "scheduler.max_interval", envKey("FLASHCARDS_SCHEDULER_MAX_INTERVAL"))
	assert.Equal(t, "log.level", envKey("FLASHCARDS_LOG_LEVEL"))
	assert.Equal(t, "repos_dir", envKey("FLASHCARDS_REPOS_DIR"))
	assert.Equal(t, "db", envKey("FLASHCARDS_DB"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "card", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

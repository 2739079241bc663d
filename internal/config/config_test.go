package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := NewFlagSet("qbank")
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		DB:       "qbank.db",
		ReposDir: "repos",
		HTTP:     HTTPConfig{Addr: "127.0.0.1:8080"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Export:   ExportConfig{Format: "json"},
		List:     ListConfig{Sort: "none"},
	}, cfg)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qbank.yaml"), []byte(`
db: from-file.db
repos_dir: /srv/repos
log:
  level: debug
list:
  sort: asc
  show_answers: true
`), 0o644))

	t.Setenv("QBANK_DB", "from-env.db")
	t.Setenv("QBANK_LOG_FORMAT", "json")

	cfg, err := load(t, "--db", "from-flag.db", "list")
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.DB, "flags win over env and file")
	assert.Equal(t, "/srv/repos", cfg.ReposDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "asc", cfg.List.Sort)
	assert.True(t, cfg.List.ShowAnswers)

	cfg, err = load(t)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DB, "env wins over file")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("QBANK_EXPORT_FORMAT=yaml\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("QBANK_EXPORT_FORMAT") })

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Export.Format)
}

func TestLoadExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: 0.0.0.0:9999\n"), 0o644))

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.HTTP.Addr)

	_, err = load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())

	testCases := [][]string{
		{"--log.level", "loud"},
		{"--export.format", "csv"},
		{"--list.sort", "random"},
		{"--db", ""},
	}
	for _, args := range testCases {
		_, err := load(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "repos_dir", envKey("QBANK_REPOS_DIR"))
	assert.Equal(t, "http.addr", envKey("QBANK_HTTP_ADDR"))
	assert.Equal(t, "list.show_answers", envKey("QBANK_LIST_SHOW_ANSWERS"))
	assert.Equal(t, "", envKey("QBANK_CONFIG"))
}

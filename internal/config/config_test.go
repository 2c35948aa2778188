package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/ledger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, engine.DefaultBuffer, cfg.Buffer)
	assert.Equal(t, ledger.LockWithdrawalsOnly, cfg.Policy())
	assert.Empty(t, cfg.Database)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "txledger.yaml", `
workers: 8
lock_policy: freeze-all
database: runs.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Workers:    8,
		LockPolicy: "freeze-all",
		Database:   "runs.db",
		Buffer:     engine.DefaultBuffer,
	}, cfg)
	assert.Equal(t, ledger.LockFreezeAll, cfg.Policy())
}

func TestLoad_YAMLEmpty(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "workers: 2\nthreads: 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")
}

func TestLoad_YAMLInvalidPolicy(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "lock_policy: thaw\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thaw")
}

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, "txledger.cue", `
workers:     4
lock_policy: "withdrawals-only"
buffer:      256
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Workers:    4,
		LockPolicy: "withdrawals-only",
		Buffer:     256,
	}, cfg)
}

func TestLoad_CUEKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "partial.cue", `database: "archive.db"`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, engine.DefaultBuffer, cfg.Buffer)
	assert.Equal(t, "archive.db", cfg.Database)
}

func TestLoad_CUEConstraintViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"policy", `lock_policy: "thaw"`},
		{"negative workers", `workers: -1`},
		{"too many workers", `workers: 5000`},
		{"zero buffer", `buffer: 0`},
		{"unknown field", `threads: 2`},
		{"wrong type", `workers: "many"`},
		{"syntax", `workers: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.cue", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", "workers = 2"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Workers = MaxWorkers + 1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Buffer = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LockPolicy = ""
	assert.NoError(t, cfg.Validate(), "empty policy selects the default")
}

func TestEngineOptions(t *testing.T) {
	cfg := Config{Workers: 3, LockPolicy: "freeze-all", Buffer: 8}
	e := engine.New(cfg.EngineOptions()...)
	assert.Equal(t, 3, e.Workers())
}

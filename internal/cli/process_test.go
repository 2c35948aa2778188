package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/testutil"
)

func TestProcessBasic(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tx.csv", basicCSV)

	stdout, stderr, err := execute(t, NewProcessCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	assert.Equal(t, basicSnapshot, stdout)
	assert.Contains(t, stderr, "run complete")
	assert.NotContains(t, stderr, "transaction rejected", "debug logs need --verbose")
}

func TestProcessVerbose(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tx.csv", basicCSV)

	stdout, stderr, err := execute(t, NewProcessCommand(&RootOptions{Format: "text", Verbose: true}), path)
	require.NoError(t, err)

	assert.Equal(t, basicSnapshot, stdout)
	assert.Contains(t, stderr, "transaction rejected")
	assert.Contains(t, stderr, "records=5 applied=4 malformed=0 INSUFFICIENT_FUNDS=1")
}

func TestProcessStdin(t *testing.T) {
	cmd := NewProcessCommand(&RootOptions{Format: "text"})
	cmd.SetIn(strings.NewReader(basicCSV))

	stdout, _, err := execute(t, cmd, "-")
	require.NoError(t, err)
	assert.Equal(t, basicSnapshot, stdout)
}

func TestProcessShardedMatchesSequential(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tx.csv", basicCSV)

	stdout, _, err := execute(t, NewProcessCommand(&RootOptions{Format: "text"}), "--workers", "4", path)
	require.NoError(t, err)
	assert.Equal(t, basicSnapshot, stdout)
}

func TestProcessJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tx.csv", basicCSV)

	opts := &ProcessOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDGenerator: testutil.FixedIDGenerator("run-fixed"),
	}
	stdout, _, err := execute(t, newProcessCommand(opts), path)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ProcessResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-fixed", resp.Data.RunID)
	assert.Equal(t, path, resp.Data.Source)
	assert.Equal(t, 1, resp.Data.Workers)
	assert.Equal(t, "withdrawals-only", resp.Data.LockPolicy)
	assert.Len(t, resp.Data.Digest, 64)
	assert.False(t, resp.Data.Archived)
	assert.Equal(t, uint64(5), resp.Data.Stats.Records)
	assert.Equal(t, uint64(1), resp.Data.Stats.Rejected[ledger.CodeInsufficientFunds])
	assert.Equal(t, []AccountRow{
		{Client: 1, Available: "1.5000", Held: "0.0000", Total: "1.5000"},
		{Client: 2, Available: "2.0000", Held: "0.0000", Total: "2.0000"},
	}, resp.Data.Accounts)
}

func TestProcessLockPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tx.csv", lockedCSV)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default", nil, lockedWithdrawalsOnly},
		{"flag", []string{"--lock-policy", "freeze-all"}, lockedFreezeAll},
		{"yaml config", []string{"--config", writeFile(t, dir, "frozen.yaml", "lock_policy: freeze-all\nworkers: 2\n")}, lockedFreezeAll},
		{"cue config", []string{"--config", writeFile(t, dir, "frozen.cue", "lock_policy: \"freeze-all\"\n")}, lockedFreezeAll},
		{
			"flag overrides config",
			[]string{"--config", filepath.Join(dir, "frozen.yaml"), "--lock-policy", "withdrawals-only"},
			lockedWithdrawalsOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append([]string{}, tt.args...), path)
			stdout, _, err := execute(t, NewProcessCommand(&RootOptions{Format: "text"}), args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestProcessErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "tx.csv", basicCSV)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"missing file", []string{filepath.Join(dir, "absent.csv")}, ExitCommandError, "failed to open input"},
		{"missing column", []string{writeFile(t, dir, "bad.csv", "type,client,amount\ndeposit,1,1\n")}, ExitCommandError, "failed to read input"},
		{"bad lock policy", []string{"--lock-policy", "sometimes", good}, ExitCommandError, "invalid configuration"},
		{"too many workers", []string{"--workers", "5000", good}, ExitCommandError, "workers must be in"},
		{"unknown config field", []string{"--config", writeFile(t, dir, "typo.yaml", "worker: 2\n"), good}, ExitCommandError, "invalid configuration"},
		{"unsupported config", []string{"--config", writeFile(t, dir, "cfg.toml", "workers = 2\n"), good}, ExitCommandError, "unsupported config format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, NewProcessCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProcessMissingArgs(t *testing.T) {
	_, _, err := execute(t, NewProcessCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestProcessArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tx.csv", basicCSV)
	db := filepath.Join(dir, "runs.db")

	opts := &ProcessOptions{
		RootOptions: &RootOptions{Format: "text"},
		IDGenerator: testutil.NewSequenceIDGenerator("run"),
	}
	_, stderr, err := execute(t, newProcessCommand(opts), "--db", db, path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "run archived")

	_, _, err = execute(t, newProcessCommand(opts), "--db", db, "--workers", "3", path)
	require.NoError(t, err)

	stdout, _, err := execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "run-1 "))
	assert.True(t, strings.HasPrefix(lines[1], "run-2 "))
	assert.Contains(t, lines[1], "workers=3 records=5 rejected=1")

	stdout, _, err = execute(t, NewShowCommand(&RootOptions{Format: "text"}), "--db", db, "--run", "run-2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# run run-2\n")
	assert.Contains(t, stdout, "# source "+path+"\n")
	assert.True(t, strings.HasSuffix(stdout, basicSnapshot))
}

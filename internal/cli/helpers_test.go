package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// execute runs cmd with args and returns what it wrote to stdout and
// stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const basicCSV = `type, client, tx, amount
deposit, 1, 1, 1.0
deposit, 2, 2, 2.0
deposit, 1, 3, 2.0
withdrawal, 1, 4, 1.5
withdrawal, 2, 5, 3.0
`

const basicSnapshot = `client,available,held,total,locked
1,1.5000,0.0000,1.5000,false
2,2.0000,0.0000,2.0000,false
`

// lockedCSV charges back client 1 and then deposits again. The final
// deposit is refused only under freeze-all.
const lockedCSV = `type,client,tx,amount
deposit,1,1,5
deposit,1,2,1
dispute,1,1,
chargeback,1,1,
deposit,1,3,2
`

const (
	lockedWithdrawalsOnly = "client,available,held,total,locked\n1,3.0000,0.0000,3.0000,true\n"
	lockedFreezeAll       = "client,available,held,total,locked\n1,1.0000,0.0000,1.0000,true\n"
)

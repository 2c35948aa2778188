package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/txledger/internal/ledger"
)

// GoldenDir is the fixture directory used by RunWithGolden.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden representation of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	LockPolicy   string       `json:"lock_policy"`
	Trace        []TraceEvent `json:"trace"`
	Accounts     []AccountRow `json:"accounts"`
}

// MarshalSnapshot renders the golden snapshot of result: indented JSON
// with a trailing newline. Struct field order keeps the output stable.
func MarshalSnapshot(scenario *Scenario, result *Result) ([]byte, error) {
	policy, err := ledger.ParseLockPolicy(scenario.LockPolicy)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(TraceSnapshot{
		ScenarioName: scenario.Name,
		LockPolicy:   string(policy),
		Trace:        result.Trace,
		Accounts:     result.Accounts,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// GoldenPath returns the golden file of a scenario file:
// <dir>/golden/<name>.golden next to the scenario.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// CompareGolden reports whether the snapshot of result matches the golden
// file at path.
func CompareGolden(path string, scenario *Scenario, result *Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	got, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return false, err
	}
	return string(got) == string(want), nil
}

// UpdateGolden writes the snapshot of result to path.
func UpdateGolden(path string, scenario *Scenario, result *Result) error {
	data, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// RunWithGolden executes a scenario and compares the snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}

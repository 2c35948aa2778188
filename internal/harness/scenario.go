package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/money"
)

// Scenario is a scripted sequence of transactions applied to a fresh
// ledger, with the expected outcome of every step and the expected
// final account state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// LockPolicy selects the ledger lock policy. Empty means the default.
	LockPolicy string `yaml:"lock_policy,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Accounts are final-state assertions. Only listed clients are checked.
	Accounts []ExpectedAccount `yaml:"accounts,omitempty"`

	// Deposits are final dispute-state assertions.
	Deposits []ExpectedDeposit `yaml:"deposits,omitempty"`
}

// Step is one transaction with its expected outcome.
type Step struct {
	Type   string `yaml:"type"`
	Client uint16 `yaml:"client"`
	Tx     uint32 `yaml:"tx"`

	// Amount is a decimal string. Required for deposit and withdrawal.
	Amount string `yaml:"amount,omitempty"`

	// Expect is "ok" or an error code such as INSUFFICIENT_FUNDS.
	// Empty means "ok".
	Expect string `yaml:"expect,omitempty"`
}

// ExpectedAccount is the expected final state of one client.
// Total is optional and checked only when set.
type ExpectedAccount struct {
	Client    uint16 `yaml:"client"`
	Available string `yaml:"available"`
	Held      string `yaml:"held"`
	Total     string `yaml:"total,omitempty"`
	Locked    bool   `yaml:"locked"`
}

// ExpectedDeposit is the expected final dispute state of one deposit.
type ExpectedDeposit struct {
	Tx    uint32 `yaml:"tx"`
	State string `yaml:"state"`
}

// OutcomeOK is the outcome of an accepted step.
const OutcomeOK = "ok"

// OutcomeHalted is the outcome of a step submitted to a halted ledger.
const OutcomeHalted = "LEDGER_HALTED"

var knownOutcomes = map[string]bool{
	OutcomeOK:     true,
	OutcomeHalted: true,
	string(ledger.CodeDuplicateTransactionID): true,
	string(ledger.CodeAccountLocked):          true,
	string(ledger.CodeInsufficientFunds):      true,
	string(ledger.CodeUnknownDeposit):         true,
	string(ledger.CodeInvalidDisputeState):    true,
	string(ledger.CodeCurrencyOverflow):       true,
	string(ledger.CodeMalformedTransaction):   true,
	string(ledger.CodeInvariantViolation):     true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml/.yml files under dir, sorted.
// A non-empty filter is matched with filepath.Match against the file name
// without extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := ledger.ParseLockPolicy(s.LockPolicy); err != nil {
		return err
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if _, err := step.transaction(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Expect != "" && !knownOutcomes[step.Expect] {
			return fmt.Errorf("steps[%d]: unknown expect %q", i, step.Expect)
		}
	}

	for i, acct := range s.Accounts {
		for field, v := range map[string]string{"available": acct.Available, "held": acct.Held} {
			if v == "" {
				return fmt.Errorf("accounts[%d]: %s is required", i, field)
			}
			if _, err := money.Parse(v); err != nil {
				return fmt.Errorf("accounts[%d]: %s: %w", i, field, err)
			}
		}
		if acct.Total != "" {
			if _, err := money.Parse(acct.Total); err != nil {
				return fmt.Errorf("accounts[%d]: total: %w", i, err)
			}
		}
	}

	for i, dep := range s.Deposits {
		if _, err := ledger.ParseDisputeState(dep.State); err != nil {
			return fmt.Errorf("deposits[%d]: %w", i, err)
		}
	}

	return nil
}

// expect returns the expected outcome with the empty default resolved.
func (s Step) expect() string {
	if s.Expect == "" {
		return OutcomeOK
	}
	return s.Expect
}

// transaction converts the step into a ledger transaction.
// Amount validation stops at parsing: a negative amount is a legitimate
// step whose expected outcome is MALFORMED_TRANSACTION.
func (s Step) transaction() (ledger.Transaction, error) {
	if s.Type == "" {
		return ledger.Transaction{}, fmt.Errorf("type is required")
	}
	kind, err := ledger.ParseKind(s.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}

	tx := ledger.Transaction{Kind: kind, ClientID: s.Client, TxID: s.Tx}
	if !kind.HasAmount() {
		if s.Amount != "" {
			return ledger.Transaction{}, fmt.Errorf("amount is not allowed for %s", kind)
		}
		return tx, nil
	}

	if s.Amount == "" {
		return ledger.Transaction{}, fmt.Errorf("amount is required for %s", kind)
	}
	amt, err := money.Parse(s.Amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	tx.Amount = amt
	return tx, nil
}

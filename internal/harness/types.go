package harness

import "github.com/roach88/txledger/internal/ledger"

// TraceEvent records one applied step and its outcome.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Type    string `json:"type"`
	Client  uint16 `json:"client"`
	Tx      uint32 `json:"tx"`
	Amount  string `json:"amount,omitempty"`
	Outcome string `json:"outcome"`
}

// AccountRow is one account of the final snapshot, rendered as strings.
type AccountRow struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expected outcome and every
	// final-state assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Accounts is the final snapshot in creation order.
	Accounts []AccountRow `json:"accounts"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Accounts: []AccountRow{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends the outcome of a step.
func (r *Result) AddTrace(step Step, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Type:    step.Type,
		Client:  step.Client,
		Tx:      step.Tx,
		Amount:  step.Amount,
		Outcome: outcome,
	})
}

// SetAccounts renders the final snapshot.
func (r *Result) SetAccounts(snap []ledger.AccountSnapshot) {
	r.Accounts = make([]AccountRow, len(snap))
	for i, a := range snap {
		r.Accounts[i] = AccountRow{
			Client:    a.ClientID,
			Available: a.Available.String(),
			Held:      a.Held.String(),
			Total:     a.Total.String(),
			Locked:    a.Locked,
		}
	}
}

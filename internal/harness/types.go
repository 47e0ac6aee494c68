package harness

// TraceEvent is one event of a step transaction with addresses rendered as
// names.
type TraceEvent struct {
	Emitter string         `json:"emitter"`
	Name    string         `json:"name"`
	Fields  map[string]any `json:"fields"`
}

// TraceTx is one step transaction.
type TraceTx struct {
	Seq       int64        `json:"seq"`
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	Sender    string       `json:"sender"`
	Status    string       `json:"status"`
	ErrorCode string       `json:"error_code,omitempty"`
	Events    []TraceEvent `json:"events"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace holds the step transactions in order. Deployment transactions
	// are not part of it.
	Trace []TraceTx `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceTx{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns every traced event in order.
func (r *Result) Events() []TraceEvent {
	var out []TraceEvent
	for _, tx := range r.Trace {
		out = append(out, tx.Events...)
	}
	return out
}

package harness

import (
	"github.com/roach88/docsync/internal/ir"
)

// Trace event kinds.
const (
	EventOp   = "op"
	EventCall = "call"
)

// TraceEvent is one planned op or one remote mutation, in order.
type TraceEvent struct {
	Type       string   `json:"type"` // "op" or "call"
	Op         string   `json:"op,omitempty"`
	ExistingID string   `json:"existing_id,omitempty"`
	BlockType  string   `json:"block_type,omitempty"`
	Method     string   `json:"method,omitempty"`
	Target     string   `json:"target,omitempty"`
	After      string   `json:"after,omitempty"`
	BlockIDs   []string `json:"block_ids,omitempty"`
	Seq        int64    `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the planned ops followed by the remote mutations.
	Trace []TraceEvent `json:"trace"`

	// Outcome is the executor's summary.
	Outcome ir.UpdateResult `json:"outcome"`

	// Final is the plain text of each top-level block after the sync.
	Final []string `json:"final"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Final:  []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOpTrace appends a planned op to the trace.
func (r *Result) AddOpTrace(op ir.DiffOp) {
	ev := TraceEvent{
		Type:       EventOp,
		Op:         string(op.Type),
		ExistingID: op.ExistingID,
		Seq:        int64(len(r.Trace) + 1),
	}
	if op.NewBlock != nil {
		ev.BlockType = op.NewBlock.Type()
	}
	r.Trace = append(r.Trace, ev)
}

// AddCallTrace appends a remote mutation to the trace.
func (r *Result) AddCallTrace(method, target, after string, blockIDs []string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:     EventCall,
		Method:   method,
		Target:   target,
		After:    after,
		BlockIDs: blockIDs,
		Seq:      int64(len(r.Trace) + 1),
	})
}

// Ops returns the op events of the trace.
func (r *Result) Ops() []TraceEvent {
	return r.events(EventOp)
}

// Calls returns the call events of the trace.
func (r *Result) Calls() []TraceEvent {
	return r.events(EventCall)
}

func (r *Result) events(kind string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

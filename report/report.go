// Package report defines the readiness vocabulary shared by the orchestrator:
// per-node states, run verdicts, transition events, and the final run report.
package report

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a single orchestrated service.
// Transitions only move forward except Probing->Probing (retry); once a
// terminal state is reached it never changes.
type State string

const (
	StatePending  State = "pending"
	StateProbing  State = "probing"
	StateReady    State = "ready"
	StateTimedOut State = "timed-out"
	StateFailed   State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateReady, StateTimedOut, StateFailed:
		return true
	}
	return false
}

// Verdict is the aggregate outcome of a whole orchestration run.
type Verdict string

const (
	// VerdictAllReady means every node reached Ready.
	VerdictAllReady Verdict = "all-ready"
	// VerdictPartialFailure means at least one node ended Failed
	// (including nodes short-circuited by a failed upstream).
	VerdictPartialFailure Verdict = "partial-failure"
	// VerdictTimeout means no node failed but at least one timed out.
	VerdictTimeout Verdict = "timeout"
)

// Event is a single timestamped node state transition.
type Event struct {
	Node   string
	State  State
	Reason string
	At     time.Time
}

// NodeResult is the terminal outcome of one node.
type NodeResult struct {
	Name     string
	State    State
	Elapsed  time.Duration
	Attempts int
	// LastError holds the last probe or post-ready error, empty on success.
	LastError string
}

// Report is the immutable result of an orchestration run. Nodes appear in
// declaration order, independent of the order they actually completed in.
type Report struct {
	Verdict    Verdict
	Nodes      []NodeResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// AllReady reports whether every node reached Ready.
func (r *Report) AllReady() bool {
	return r.Verdict == VerdictAllReady
}

// Node returns the result for the named node and whether it exists.
func (r *Report) Node(name string) (NodeResult, bool) {
	for _, n := range r.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeResult{}, false
}

// ResolveVerdict derives the run verdict from terminal node results.
// Failed wins over TimedOut so operators see "came up broken" distinctly
// from "never came up".
func ResolveVerdict(nodes []NodeResult) Verdict {
	verdict := VerdictAllReady
	for _, n := range nodes {
		switch n.State {
		case StateFailed:
			return VerdictPartialFailure
		case StateTimedOut:
			verdict = VerdictTimeout
		}
	}
	return verdict
}

// SerializableReport is a JSON-friendly representation of Report.
// Durations are rendered as Go duration strings for diffable output.
type SerializableReport struct {
	Verdict    Verdict                  `json:"verdict"`
	Nodes      []SerializableNodeResult `json:"nodes"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt time.Time                `json:"finishedAt"`
}

// SerializableNodeResult is a JSON-friendly representation of NodeResult.
type SerializableNodeResult struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Elapsed  string `json:"elapsed"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// ToSerializable converts Report into a JSON-friendly representation.
func (r Report) ToSerializable() SerializableReport {
	nodes := make([]SerializableNodeResult, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		nodes = append(nodes, SerializableNodeResult{
			Name:     n.Name,
			State:    n.State,
			Elapsed:  n.Elapsed.String(),
			Attempts: n.Attempts,
			Error:    n.LastError,
		})
	}
	return SerializableReport{
		Verdict:    r.Verdict,
		Nodes:      nodes,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// MarshalJSON implements the json.Marshaler interface for Report.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToSerializable())
}

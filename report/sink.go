package report

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink receives node state transitions as they occur. Implementations must
// tolerate concurrent calls; the orchestrator invokes Transition from the
// goroutine that observed the change.
type Sink interface {
	Transition(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Transition(e Event) { f(e) }

// NopSink discards all transitions. It is the orchestrator default.
type NopSink struct{}

func (NopSink) Transition(Event) {}

// LogSink emits every transition as a structured log line. Ready lands at
// info, terminal failures at warn, intermediate states at debug.
type LogSink struct {
	Logger logrus.FieldLogger
}

// NewLogSink creates a LogSink backed by the given logger. A nil logger
// falls back to the logrus standard logger.
func NewLogSink(logger logrus.FieldLogger) LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return LogSink{Logger: logger}
}

func (s LogSink) Transition(e Event) {
	entry := s.Logger.WithFields(logrus.Fields{
		"node":  e.Node,
		"state": e.State,
	})
	if e.Reason != "" {
		entry = entry.WithField("reason", e.Reason)
	}
	switch e.State {
	case StateReady:
		entry.Info("service ready")
	case StateFailed, StateTimedOut:
		entry.Warn("service not ready")
	default:
		entry.Debug("service state changed")
	}
}

// Recorder accumulates transitions and terminal results and renders the
// final Report in declaration order. It also fans events out to an optional
// downstream sink, so a single Sink value can serve both the caller's
// progress stream and the final report.
type Recorder struct {
	mu      sync.Mutex
	order   []string
	events  []Event
	results map[string]NodeResult
	forward Sink
}

// NewRecorder creates a Recorder for the given node names in declaration
// order. Events are forwarded to next when it is non-nil.
func NewRecorder(order []string, next Sink) *Recorder {
	if next == nil {
		next = NopSink{}
	}
	return &Recorder{
		order:   append([]string(nil), order...),
		results: make(map[string]NodeResult, len(order)),
		forward: next,
	}
}

// Transition records one event and forwards it.
func (r *Recorder) Transition(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.forward.Transition(e)
}

// SetResult records the terminal result for a node. Later calls for the
// same node are ignored; terminal results are immutable.
func (r *Recorder) SetResult(res NodeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[res.Name]; !exists {
		r.results[res.Name] = res
	}
}

// Events returns a copy of all recorded transitions in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Render produces the final Report. Nodes appear in declaration order; a
// node with no recorded result is reported as Pending with zero attempts.
func (r *Recorder) Render(started, finished time.Time) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes := make([]NodeResult, 0, len(r.order))
	for _, name := range r.order {
		res, ok := r.results[name]
		if !ok {
			res = NodeResult{Name: name, State: StatePending}
		}
		nodes = append(nodes, res)
	}
	return &Report{
		Verdict:    ResolveVerdict(nodes),
		Nodes:      nodes,
		StartedAt:  started,
		FinishedAt: finished,
	}
}

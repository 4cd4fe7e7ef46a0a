// Package stagehand coordinates the staged startup of interdependent,
// slow-starting services: each service is polled for readiness with a
// bounded retry policy, independent services run in parallel, and a
// dependent is never probed before all of its prerequisites are Ready.
// A failed or timed-out service short-circuits everything downstream of it.
package stagehand

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/zeckit/stagehand/graph"
	"github.com/zeckit/stagehand/probe"
	"github.com/zeckit/stagehand/report"
)

// Orchestrator owns a set of declared services and drives them to terminal
// readiness states in dependency order.
type Orchestrator struct {
	services  []Service
	sink      report.Sink
	client    probe.Client
	clock     clockwork.Clock
	deadline  time.Duration
	artifacts *Artifacts
}

// NewOrchestrator creates an orchestrator with no services, a no-op sink
// and the production probe client.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		sink:      report.NopSink{},
		client:    probe.NewNetClient(),
		clock:     clockwork.NewRealClock(),
		artifacts: newArtifacts(),
	}
}

// Add declares services (fluent method). Declaration order is preserved in
// the final report.
func (o *Orchestrator) Add(services ...Service) *Orchestrator {
	o.services = append(o.services, services...)
	return o
}

// WithSink sets the transition sink invoked on every node state change
// (fluent method).
func (o *Orchestrator) WithSink(sink report.Sink) *Orchestrator {
	if sink != nil {
		o.sink = sink
	}
	return o
}

// WithProbeClient replaces the probe client (fluent method). Tests inject
// scripted clients here.
func (o *Orchestrator) WithProbeClient(client probe.Client) *Orchestrator {
	if client != nil {
		o.client = client
	}
	return o
}

// WithClock replaces the clock used for timestamps, elapsed accounting and
// retry sleeps (fluent method).
func (o *Orchestrator) WithClock(clock clockwork.Clock) *Orchestrator {
	if clock != nil {
		o.clock = clock
	}
	return o
}

// WithDeadline sets a global run deadline (fluent method). On expiry all
// in-flight probes are cancelled and non-terminal nodes end TimedOut.
// Zero means no global deadline.
func (o *Orchestrator) WithDeadline(d time.Duration) *Orchestrator {
	o.deadline = d
	return o
}

// Artifacts returns the store post-ready actions write handoff values to.
func (o *Orchestrator) Artifacts() *Artifacts {
	return o.artifacts
}

// node is coordinator-owned runtime state for one service. Only the
// coordinator loop reads or writes it.
type node struct {
	svc     Service
	state   report.State
	waiting int
}

// build validates the declared services and returns the dependency graph.
// Any problem is a ConfigurationError and no probe is ever issued.
func (o *Orchestrator) build() (*graph.Graph, error) {
	g := graph.New()
	for _, svc := range o.services {
		if svc.Name == "" {
			return nil, newConfigurationError("graph", fmt.Errorf("service name must not be empty"))
		}
		if err := svc.Retry.Validate(); err != nil {
			return nil, newConfigurationError(svc.Name, err)
		}
		if err := g.Add(svc.Name, svc.DependsOn...); err != nil {
			return nil, newConfigurationError(svc.Name, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, newConfigurationError("graph", err)
	}
	return g, nil
}

// Graph returns the validated dependency graph for inspection.
func (o *Orchestrator) Graph() (*graph.Graph, error) {
	return o.build()
}

// Mermaid renders the declared graph as a Mermaid TD diagram, annotated
// with the node states from a finished run. Pass nil for the bare graph.
func (o *Orchestrator) Mermaid(rep *report.Report) (string, error) {
	g, err := o.build()
	if err != nil {
		return "", err
	}
	states := make(map[string]string)
	if rep != nil {
		for _, n := range rep.Nodes {
			states[n.Name] = string(n.State)
		}
	}
	return g.RenderTD(states), nil
}

// Run drives every declared service to a terminal state and returns the
// final report. The returned error is non-nil only for configuration
// problems; per-service failures are reported in the Report so operators
// see every node's outcome, not just the first failure.
func (o *Orchestrator) Run(ctx context.Context) (*report.Report, error) {
	g, err := o.build()
	if err != nil {
		return nil, err
	}
	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	names := g.Nodes()
	recorder := report.NewRecorder(names, o.sink)
	started := o.clock.Now()

	nodes := make(map[string]*node, len(names))
	for _, svc := range o.services {
		nodes[svc.Name] = &node{
			svc:     svc,
			state:   report.StatePending,
			waiting: len(svc.DependsOn),
		}
	}
	dependents := g.Dependents()

	// Workers report through this channel; it is buffered so no worker
	// ever blocks on a coordinator that is busy or already unwinding.
	results := make(chan report.NodeResult, len(names))
	var group errgroup.Group

	launch := func(n *node) {
		n.state = report.StateProbing
		recorder.Transition(report.Event{Node: n.svc.Name, State: report.StateProbing, At: o.clock.Now()})
		svc := n.svc
		group.Go(func() error {
			results <- o.activate(ctx, svc)
			return nil
		})
	}

	// terminal transitions are applied only here, keeping the coordinator
	// the single writer of eligibility state.
	terminal := func(n *node, res report.NodeResult) {
		n.state = res.State
		recorder.Transition(report.Event{Node: res.Name, State: res.State, Reason: res.LastError, At: o.clock.Now()})
		recorder.SetResult(res)
	}

	for _, name := range names {
		if n := nodes[name]; n.waiting == 0 {
			launch(n)
		}
	}

	remaining := len(names)
	ctxDone := ctx.Done()
	for remaining > 0 {
		select {
		case res := <-results:
			n := nodes[res.Name]
			terminal(n, res)
			remaining--
			if res.State == report.StateReady {
				for _, depName := range dependents[res.Name] {
					dependent := nodes[depName]
					if dependent.state != report.StatePending {
						continue
					}
					dependent.waiting--
					if dependent.waiting == 0 {
						launch(dependent)
					}
				}
				continue
			}
			// A broken base service implies broken dependents: mark the
			// whole downstream closure without probing it.
			for _, downName := range g.Downstream(res.Name) {
				downstream := nodes[downName]
				if downstream.state != report.StatePending {
					continue
				}
				terminal(downstream, report.NodeResult{
					Name:      downName,
					State:     report.StateFailed,
					LastError: ErrUpstreamUnavailable.Error(),
				})
				remaining--
			}
		case <-ctxDone:
			ctxDone = nil
			for _, name := range names {
				n := nodes[name]
				if n.state == report.StatePending {
					terminal(n, report.NodeResult{
						Name:      name,
						State:     report.StateTimedOut,
						LastError: ctx.Err().Error(),
					})
					remaining--
				}
			}
		}
	}
	_ = group.Wait()

	return recorder.Render(started, o.clock.Now()), nil
}

// RunResult pairs a report with the run error for asynchronous consumption.
type RunResult struct {
	Report *report.Report
	Err    error
}

// RunAsync executes the run in a background goroutine. The returned channel
// receives the final result and is then closed.
func (o *Orchestrator) RunAsync(ctx context.Context) <-chan RunResult {
	ch := make(chan RunResult, 1)
	go func() {
		rep, err := o.Run(ctx)
		ch <- RunResult{Report: rep, Err: err}
		close(ch)
	}()
	return ch
}

// activate runs one node's bounded retry loop and, on readiness, its
// post-ready action.
func (o *Orchestrator) activate(ctx context.Context, svc Service) report.NodeResult {
	res := runRetry(ctx, o.clock, svc.Probe, svc.Retry, o.client)
	nodeResult := report.NodeResult{
		Name:     svc.Name,
		State:    res.state,
		Elapsed:  res.elapsed,
		Attempts: res.attempts,
	}
	if res.last.Err != nil {
		nodeResult.LastError = res.last.Err.Error()
	}
	if res.state == report.StateReady && svc.PostReady != nil {
		if err := svc.PostReady(ctx, res.last.Payload, o.artifacts); err != nil {
			nodeResult.State = report.StateFailed
			nodeResult.LastError = fmt.Sprintf("post-ready: %v", err)
		}
	}
	return nodeResult
}

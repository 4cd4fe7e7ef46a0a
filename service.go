package stagehand

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/zeckit/stagehand/probe"
)

// PostReadyFunc is a side-effecting step run exactly once after a service's
// probe reports ready, before dependents are released. It receives the
// successful probe payload and the run's artifact store. A post-ready error
// marks the node Failed: readiness without the handoff artifact is not
// readiness for the dependents that need it.
type PostReadyFunc func(ctx context.Context, payload json.RawMessage, artifacts *Artifacts) error

// Service declares one named unit of orchestration.
type Service struct {
	Name string
	// Probe describes how readiness is checked.
	Probe probe.Spec
	// Retry bounds the polling loop.
	Retry RetryConfig
	// DependsOn lists services that must be Ready before this one is probed.
	DependsOn []string
	// PostReady is optional.
	PostReady PostReadyFunc
}

// Artifacts is a concurrency-safe store for values handed from post-ready
// actions to later consumers, e.g. a generated wallet address that the
// miner config needs.
type Artifacts struct {
	mu     sync.RWMutex
	values map[string]string
}

func newArtifacts() *Artifacts {
	return &Artifacts{values: make(map[string]string)}
}

// Set records an artifact under the given key.
func (a *Artifacts) Set(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = value
}

// Get returns the artifact for key and whether it exists.
func (a *Artifacts) Get(key string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	value, ok := a.values[key]
	return value, ok
}

// Snapshot returns a copy of all recorded artifacts.
func (a *Artifacts) Snapshot() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snapshot := make(map[string]string, len(a.values))
	for k, v := range a.values {
		snapshot[k] = v
	}
	return snapshot
}

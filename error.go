package stagehand

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable is the synthetic failure reason attached to nodes
// that were never probed because a dependency ended Failed or TimedOut.
var ErrUpstreamUnavailable = errors.New("upstream dependency unavailable")

// ConfigurationError reports an invalid orchestration setup detected at
// build time: a cyclic or dangling dependency, invalid retry bounds, a
// duplicate or empty service name. The run never starts.
type ConfigurationError struct {
	Err error
	// Component names the offending service, or "graph" for graph-wide
	// problems.
	Component string
}

func newConfigurationError(component string, err error) ConfigurationError {
	return ConfigurationError{Err: err, Component: component}
}

// Error implements the error interface.
func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v, component: %s", e.Err, e.Component)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}

// Package probe performs single-attempt readiness probes against service
// endpoints and classifies the result as success, transient failure, or
// fatal failure. Retrying is the caller's concern; a probe never sleeps.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind selects the probe mechanism.
type Kind string

const (
	// KindRPC issues a JSON-RPC 2.0 call over HTTP POST.
	KindRPC Kind = "rpc"
	// KindHTTP issues a plain HTTP GET.
	KindHTTP Kind = "http"
	// KindTCP checks that a TCP connection can be established.
	KindTCP Kind = "tcp"
	// KindFile checks that a file exists.
	KindFile Kind = "file"
)

// DefaultTimeout bounds a single attempt when Spec.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Spec is an immutable probe descriptor, created at configuration time.
type Spec struct {
	Kind   Kind
	// Target is a URL for rpc/http probes, host:port for tcp, a path for file.
	Target string
	// Method and Params apply to rpc probes only.
	Method string
	Params []any
	// Expect evaluates the response body; nil accepts any well-formed
	// response. See the Predicate helpers in this package.
	Expect Predicate
	// Timeout bounds one attempt; zero means DefaultTimeout.
	Timeout time.Duration
}

// AttemptTimeout returns the effective per-attempt timeout.
func (s Spec) AttemptTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// Class tags the result of one probe attempt.
type Class int

const (
	// ClassSuccess: the endpoint responded and satisfied the predicate.
	ClassSuccess Class = iota
	// ClassTransient: the service may still be starting; retryable.
	ClassTransient
	// ClassFatal: the attempt can never succeed; aborts the retry loop.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Outcome is the tagged result of a single probe attempt.
type Outcome struct {
	Class   Class
	Payload json.RawMessage
	Err     error
}

// OK builds a success outcome carrying the response payload.
func OK(payload json.RawMessage) Outcome {
	return Outcome{Class: ClassSuccess, Payload: payload}
}

// TransientFailure builds a retryable failure outcome.
func TransientFailure(err error) Outcome {
	return Outcome{Class: ClassTransient, Err: err}
}

// FatalFailure builds a non-retryable failure outcome.
func FatalFailure(err error) Outcome {
	return Outcome{Class: ClassFatal, Err: err}
}

// Client performs one probe attempt, bounded by the spec's per-attempt
// timeout and the caller's context.
type Client interface {
	Probe(ctx context.Context, spec Spec) Outcome
}

// ClientFunc adapts a plain function to the Client interface.
type ClientFunc func(ctx context.Context, spec Spec) Outcome

func (f ClientFunc) Probe(ctx context.Context, spec Spec) Outcome {
	return f(ctx, spec)
}

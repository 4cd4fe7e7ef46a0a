package stagehand

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zeckit/stagehand/probe"
	"github.com/zeckit/stagehand/report"
)

// scriptedClient replays a fixed outcome sequence; once exhausted it keeps
// returning the last outcome.
type scriptedClient struct {
	mu       sync.Mutex
	outcomes []probe.Outcome
	calls    int
}

func (c *scriptedClient) Probe(_ context.Context, _ probe.Spec) probe.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	out := c.outcomes[0]
	if len(c.outcomes) > 1 {
		c.outcomes = c.outcomes[1:]
	}
	return out
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRetryConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    RetryConfig
		expectErr bool
	}{
		{
			name:   "valid-constant",
			config: RetryConfig{Interval: time.Second, MaxWait: time.Minute},
		},
		{
			name:   "valid-exponential",
			config: RetryConfig{Interval: time.Second, MaxWait: time.Minute, Exponential: true, MaxInterval: 10 * time.Second},
		},
		{
			name:      "zero-interval",
			config:    RetryConfig{MaxWait: time.Minute},
			expectErr: true,
		},
		{
			name:      "negative-interval",
			config:    RetryConfig{Interval: -time.Second, MaxWait: time.Minute},
			expectErr: true,
		},
		{
			name:      "max-wait-below-interval",
			config:    RetryConfig{Interval: 2 * time.Second, MaxWait: time.Second},
			expectErr: true,
		},
		{
			name:      "max-interval-below-interval",
			config:    RetryConfig{Interval: 2 * time.Second, MaxWait: time.Minute, MaxInterval: time.Second},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

// advance unblocks the retry loop's sleep n times on a fake clock.
func advance(fc *clockwork.FakeClock, n int, step time.Duration) {
	for i := 0; i < n; i++ {
		fc.BlockUntil(1)
		fc.Advance(step)
	}
}

func TestRetryReadyAfterTransients(t *testing.T) {
	fc := clockwork.NewFakeClock()
	interval := 2 * time.Second
	client := &scriptedClient{outcomes: []probe.Outcome{
		probe.TransientFailure(errors.New("connection refused")),
		probe.TransientFailure(errors.New("connection refused")),
		probe.OK([]byte(`{"result":105}`)),
	}}

	done := make(chan retryOutcome, 1)
	go func() {
		done <- runRetry(context.Background(), fc, probe.Spec{}, RetryConfig{Interval: interval, MaxWait: time.Minute}, client)
	}()
	advance(fc, 2, interval)

	res := <-done
	if res.state != report.StateReady {
		t.Fatalf("expected Ready, got %s", res.state)
	}
	if res.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.attempts)
	}
	if res.elapsed != 2*interval {
		t.Fatalf("expected elapsed %s, got %s", 2*interval, res.elapsed)
	}
	if string(res.last.Payload) != `{"result":105}` {
		t.Fatalf("unexpected payload %s", res.last.Payload)
	}
}

func TestRetryFatalAbortsImmediately(t *testing.T) {
	fc := clockwork.NewFakeClock()
	interval := time.Second
	client := &scriptedClient{outcomes: []probe.Outcome{
		probe.TransientFailure(errors.New("connection refused")),
		probe.FatalFailure(errors.New("auth rejected")),
		probe.OK(nil), // must never be reached
	}}

	done := make(chan retryOutcome, 1)
	go func() {
		done <- runRetry(context.Background(), fc, probe.Spec{}, RetryConfig{Interval: interval, MaxWait: time.Hour}, client)
	}()
	advance(fc, 1, interval)

	res := <-done
	if res.state != report.StateFailed {
		t.Fatalf("expected Failed, got %s", res.state)
	}
	if res.attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.attempts)
	}
	if got := client.callCount(); got != 2 {
		t.Fatalf("expected 2 probe calls, got %d", got)
	}
}

func TestRetryTimesOutAfterBudget(t *testing.T) {
	fc := clockwork.NewFakeClock()
	interval := time.Second
	client := &scriptedClient{outcomes: []probe.Outcome{
		probe.TransientFailure(errors.New("not ready yet")),
	}}

	done := make(chan retryOutcome, 1)
	go func() {
		done <- runRetry(context.Background(), fc, probe.Spec{}, RetryConfig{Interval: interval, MaxWait: 3 * interval}, client)
	}()
	advance(fc, 3, interval)

	res := <-done
	if res.state != report.StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", res.state)
	}
	if res.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.attempts)
	}
	if res.elapsed != 3*interval {
		t.Fatalf("expected elapsed %s, got %s", 3*interval, res.elapsed)
	}
	if res.last.Err == nil {
		t.Fatal("expected last error to be kept")
	}
}

func TestRetryExponentialIntervals(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &scriptedClient{outcomes: []probe.Outcome{
		probe.TransientFailure(errors.New("starting")),
	}}
	cfg := RetryConfig{Interval: time.Second, MaxWait: 7 * time.Second, Exponential: true}

	done := make(chan retryOutcome, 1)
	go func() {
		done <- runRetry(context.Background(), fc, probe.Spec{}, cfg, client)
	}()
	// Intervals advance 1s, 2s, 4s; after the third sleep elapsed is 7s.
	for _, step := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		fc.BlockUntil(1)
		fc.Advance(step)
	}

	res := <-done
	if res.state != report.StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", res.state)
	}
	if res.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.attempts)
	}
	if res.elapsed != 7*time.Second {
		t.Fatalf("expected elapsed 7s, got %s", res.elapsed)
	}
}

func TestRetryDeterministicReplay(t *testing.T) {
	run := func() retryOutcome {
		fc := clockwork.NewFakeClock()
		client := &scriptedClient{outcomes: []probe.Outcome{
			probe.TransientFailure(errors.New("refused")),
			probe.TransientFailure(errors.New("refused")),
			probe.OK([]byte(`{}`)),
		}}
		done := make(chan retryOutcome, 1)
		go func() {
			done <- runRetry(context.Background(), fc, probe.Spec{}, RetryConfig{Interval: 500 * time.Millisecond, MaxWait: time.Minute}, client)
		}()
		advance(fc, 2, 500*time.Millisecond)
		return <-done
	}

	first, second := run(), run()
	if first.state != second.state || first.attempts != second.attempts || first.elapsed != second.elapsed {
		t.Fatalf("replay diverged: %+v vs %+v", first, second)
	}
}

func TestRetryCancelledContext(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &scriptedClient{outcomes: []probe.Outcome{
		probe.TransientFailure(errors.New("refused")),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan retryOutcome, 1)
	go func() {
		done <- runRetry(ctx, fc, probe.Spec{}, RetryConfig{Interval: time.Second, MaxWait: time.Hour}, client)
	}()
	fc.BlockUntil(1) // loop is sleeping
	cancel()

	select {
	case res := <-done:
		if res.state != report.StateTimedOut {
			t.Fatalf("expected TimedOut on cancellation, got %s", res.state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not honor cancellation")
	}
}

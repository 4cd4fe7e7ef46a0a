package stagehand

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/zeckit/stagehand/probe"
	"github.com/zeckit/stagehand/report"
)

// RetryConfig bounds the polling loop for one service. It is immutable
// once the run starts.
type RetryConfig struct {
	// Interval is the initial delay between attempts.
	Interval time.Duration
	// MaxWait caps the total time spent polling this service.
	MaxWait time.Duration
	// Exponential doubles the interval after each transient failure,
	// capped at MaxInterval.
	Exponential bool
	// MaxInterval caps the exponential interval. Zero means 16x Interval.
	MaxInterval time.Duration
	// Jitter randomizes each interval by up to ±50%. A jittered config is
	// outside the deterministic-elapsed guarantee.
	Jitter bool
}

// Validate rejects configurations that would run zero attempts.
func (c RetryConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %s", c.Interval)
	}
	if c.MaxWait < c.Interval {
		return fmt.Errorf("retry max wait %s is shorter than interval %s", c.MaxWait, c.Interval)
	}
	if c.MaxInterval != 0 && c.MaxInterval < c.Interval {
		return fmt.Errorf("retry max interval %s is shorter than interval %s", c.MaxInterval, c.Interval)
	}
	return nil
}

func (c RetryConfig) maxInterval() time.Duration {
	if c.MaxInterval > 0 {
		return c.MaxInterval
	}
	return 16 * c.Interval
}

// backOff builds the interval source for one retry loop.
func (c RetryConfig) backOff() backoff.BackOff {
	if !c.Exponential && !c.Jitter {
		return backoff.NewConstantBackOff(c.Interval)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.Interval
	bo.MaxInterval = c.maxInterval()
	// Elapsed accounting belongs to the retry loop, not the interval source.
	bo.MaxElapsedTime = 0
	bo.Multiplier = 2
	if !c.Exponential {
		bo.Multiplier = 1
	}
	bo.RandomizationFactor = 0
	if c.Jitter {
		bo.RandomizationFactor = 0.5
	}
	bo.Reset()
	return bo
}

// retryOutcome is the terminal result of one node's polling loop.
type retryOutcome struct {
	state    report.State
	last     probe.Outcome
	elapsed  time.Duration
	attempts int
}

// runRetry polls the probe until success, fatal failure, an exhausted
// MaxWait budget, or context cancellation. A fatal outcome stops the loop
// immediately regardless of remaining budget. Given the same scripted
// outcomes, config and a fake clock, the result is reproducible.
func runRetry(ctx context.Context, clock clockwork.Clock, spec probe.Spec, cfg RetryConfig, client probe.Client) retryOutcome {
	start := clock.Now()
	bo := cfg.backOff()

	var last probe.Outcome
	attempts := 0
	for {
		if ctx.Err() != nil {
			return retryOutcome{state: report.StateTimedOut, last: last, elapsed: clock.Since(start), attempts: attempts}
		}
		attempts++
		last = client.Probe(ctx, spec)
		switch last.Class {
		case probe.ClassSuccess:
			return retryOutcome{state: report.StateReady, last: last, elapsed: clock.Since(start), attempts: attempts}
		case probe.ClassFatal:
			return retryOutcome{state: report.StateFailed, last: last, elapsed: clock.Since(start), attempts: attempts}
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			delay = cfg.Interval
		}
		select {
		case <-ctx.Done():
			return retryOutcome{state: report.StateTimedOut, last: last, elapsed: clock.Since(start), attempts: attempts}
		case <-clock.After(delay):
		}
		if elapsed := clock.Since(start); elapsed >= cfg.MaxWait {
			return retryOutcome{state: report.StateTimedOut, last: last, elapsed: elapsed, attempts: attempts}
		}
	}
}

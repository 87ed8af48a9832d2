package adapter

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Target names an adapter/model pair to try.
type Target struct {
	Adapter Adapter
	Model   string
}

// Policy controls retries, backoff, timeouts and rate limiting of calls.
type Policy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Timeout bounds each individual attempt; zero disables it.
	Timeout time.Duration
	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
}

// DefaultPolicy mirrors the routing defaults of two retries with 200ms..2s backoff.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, BaseBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// Resilient wraps an adapter with a retry policy and an optional fallback chain.
type Resilient struct {
	primary   Adapter
	policy    Policy
	fallbacks []Target
}

// WithPolicy wraps primary so that transient failures are retried and, once
// exhausted, the fallback targets are tried in order.
func WithPolicy(primary Adapter, policy Policy, fallbacks ...Target) *Resilient {
	return &Resilient{primary: primary, policy: policy, fallbacks: fallbacks}
}

// Name returns the wrapped adapter's identifier.
func (r *Resilient) Name() string {
	return r.primary.Name()
}

// Models returns the wrapped adapter's models.
func (r *Resilient) Models() []string {
	return r.primary.Models()
}

// Generate runs the request against the primary target and then fallbacks.
func (r *Resilient) Generate(ctx context.Context, req Request) (*Response, error) {
	targets := append([]Target{{Adapter: r.primary, Model: req.Model}}, r.fallbacks...)
	var reports []CallReport
	var lastErr error

	for idx, target := range targets {
		if target.Adapter == nil {
			continue
		}
		call := req
		if target.Model != "" {
			call.Model = target.Model
		}

		for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
			if r.policy.Limiter != nil {
				if err := r.policy.Limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}

			resp, err := r.attempt(ctx, target.Adapter, call)
			if err == nil {
				reports = append(reports, CallReport{
					Adapter:      target.Adapter.Name(),
					Model:        call.Model,
					Retries:      attempt,
					FallbackUsed: idx > 0,
				})
				resp.Reports = reports
				return resp, nil
			}

			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !IsTransient(err) || attempt == r.policy.MaxRetries {
				reports = append(reports, CallReport{
					Adapter:      target.Adapter.Name(),
					Model:        call.Model,
					Retries:      attempt,
					FallbackUsed: idx > 0,
					Error:        err.Error(),
				})
				break
			}

			backoff := computeBackoff(r.policy.BaseBackoff, r.policy.MaxBackoff, attempt)
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("adapter call failed")
	}
	return nil, lastErr
}

func (r *Resilient) attempt(ctx context.Context, a Adapter, req Request) (*Response, error) {
	if r.policy.Timeout <= 0 {
		return a.Generate(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()
	return a.Generate(callCtx, req)
}

func computeBackoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

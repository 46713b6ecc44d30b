package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"prism/internal/concern"
	"prism/internal/logging"
)

// CallOptions bound one provider call: per-attempt timeout, total attempt
// count, and the backoff base (doubles per attempt).
type CallOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultCallOptions matches the reference settings: 12s per attempt,
// 3 attempts, 200ms backoff base.
func DefaultCallOptions() CallOptions {
	return CallOptions{Timeout: 12 * time.Second, MaxAttempts: 3, BaseBackoff: 200 * time.Millisecond}
}

func (o CallOptions) withDefaults() CallOptions {
	d := DefaultCallOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = d.BaseBackoff
	}
	return o
}

// Call runs one provider with retry, timeout, and normalization, and always
// returns a well-formed ProviderOutput: ok with normalized concerns, or
// ok=false with a classified failure reason. Failures never escape as
// errors; a failed provider simply contributes zero concerns. A timed-out
// attempt is abandoned, never harvested late.
func Call(ctx context.Context, p Provider, in concern.Context, opts CallOptions) *concern.ProviderOutput {
	opts = opts.withDefaults()
	logger := logging.New("provider")
	start := time.Now()

	out := &concern.ProviderOutput{
		Provider:     p.Name(),
		ModelName:    p.ModelName(),
		ModelVersion: p.ModelVersion(),
		Quality:      in.Quality,
	}

	var raw []concern.RawConcern
	attempts := 0

	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()

		var err error
		raw, err = p.Detect(attemptCtx, in)
		if err == nil {
			return nil
		}
		reason := Classify(err, statusCode(err))
		if permanent(reason) {
			return backoff.Permanent(NewCallError(reason, statusCode(err), err))
		}
		return NewCallError(reason, statusCode(err), err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.BaseBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(opts.MaxAttempts-1)), ctx))

	out.LatencyMs = time.Since(start).Milliseconds()
	out.Attempts = attempts

	if err != nil {
		reason := Classify(err, statusCode(err))
		out.OK = false
		out.FailureReason = string(reason)
		out.ProviderStatusCode = statusCode(err)
		logger.Warn("provider call failed",
			"provider", p.Name(), "reason", out.FailureReason, "attempts", attempts)
		return out
	}

	out.OK = true
	for _, rc := range raw {
		c, ok := concern.Normalize(rc, p.Name(), p.ModelName())
		if !ok {
			continue
		}
		out.Concerns = append(out.Concerns, c)
	}
	return out
}

// statusCode digs the HTTP status out of a classified error chain, 0 if none.
func statusCode(err error) int {
	for err != nil {
		if ce, ok := err.(*CallError); ok && ce.StatusCode != 0 {
			return ce.StatusCode
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

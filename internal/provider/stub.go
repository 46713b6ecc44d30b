package provider

import (
	"context"
	"time"

	"prism/internal/concern"
)

// Stub is a scriptable provider used by tests, the demo command, and any
// place that needs deterministic provider behavior without a network.
type Stub struct {
	ProviderName string
	Model        string
	Version      string
	Concerns     []concern.RawConcern
	Err          error         // returned on every call when set
	FailFirst    int           // fail this many calls before succeeding
	Delay        time.Duration // simulated latency per call

	calls int
}

// NewStub returns a stub that answers with the given concerns.
func NewStub(name string, concerns ...concern.RawConcern) *Stub {
	return &Stub{ProviderName: name, Model: name + "-stub", Version: "v0", Concerns: concerns}
}

func (s *Stub) Name() string         { return s.ProviderName }
func (s *Stub) ModelName() string    { return s.Model }
func (s *Stub) ModelVersion() string { return s.Version }

// Calls reports how many times Detect ran.
func (s *Stub) Calls() int { return s.calls }

func (s *Stub) Detect(ctx context.Context, in concern.Context) ([]concern.RawConcern, error) {
	s.calls++
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.FailFirst >= s.calls {
		return nil, NewCallError(FailUpstream5xx, 503, nil)
	}
	return s.Concerns, nil
}

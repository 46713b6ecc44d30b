// Package provider defines the interface the fusion core consumes for each
// visual-diagnosis backend, the provider-call failure taxonomy, and the
// retry/timeout wrapper that turns raw adapter calls into normalized
// ProviderOutput records. Transport (HTTP, auth, response parsing) lives in
// the adapters, not here.
package provider

import (
	"context"

	"prism/internal/concern"
)

// Provider is one visual-diagnosis backend: the deterministic rule-based
// detector or a vision-language model behind an adapter.
type Provider interface {
	Name() string
	ModelName() string
	ModelVersion() string

	// Detect analyzes the image referenced by the context bundle and returns
	// raw concerns. Adapters surface failures as *CallError so the core can
	// classify them without knowing the transport.
	Detect(ctx context.Context, in concern.Context) ([]concern.RawConcern, error)
}

// CallError is the classified failure of one provider call.
type CallError struct {
	Reason     FailureReason
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return string(e.Reason) + ": " + e.Err.Error()
	}
	return string(e.Reason)
}

func (e *CallError) Unwrap() error { return e.Err }

// NewCallError wraps err with a classified reason.
func NewCallError(reason FailureReason, statusCode int, err error) *CallError {
	return &CallError{Reason: reason, StatusCode: statusCode, Err: err}
}

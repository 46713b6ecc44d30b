package provider

import (
	"context"
	"errors"
	"testing"
)

func TestClassify_PriorityOrder(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		want   FailureReason
	}{
		{"deadline", context.DeadlineExceeded, 0, FailTimeout},
		// Timeout wins even when a status code is present.
		{"timeout with 500", errors.New("request timed out"), 500, FailTimeout},
		{"refused", errors.New("dial tcp: connection refused"), 0, FailNetwork},
		{"auth status", errors.New("denied"), 401, FailMissingKey},
		{"auth keyword", errors.New("missing key for vision API"), 0, FailMissingKey},
		// Quota keywords beat the generic 429.
		{"quota keyword", errors.New("429: quota exceeded for project"), 429, FailQuotaExceeded},
		{"rate limit", errors.New("too many requests"), 429, FailRateLimited},
		{"schema", errors.New("cannot unmarshal response"), 200, FailSchemaInvalid},
		{"5xx band", errors.New("internal error"), 502, FailUpstream5xx},
		{"4xx band", errors.New("bad request"), 422, FailUpstream4xx},
		{"image keyword", errors.New("unsupported image mime type"), 0, FailImageInvalid},
		{"unknown", errors.New("something odd"), 0, FailUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Classify(c.err, c.status); got != c.want {
				t.Errorf("Classify(%v, %d) = %v, want %v", c.err, c.status, got, c.want)
			}
		})
	}
}

func TestClassify_PassThroughCallError(t *testing.T) {
	err := NewCallError(FailRateLimited, 429, errors.New("slow down"))
	if got := Classify(err, 0); got != FailRateLimited {
		t.Errorf("pre-classified error re-classified to %v", got)
	}
}

func TestNormalizeVerifyReason(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{string(FailTimeout), VerifyTimeout},
		{string(FailRateLimited), VerifyRateLimit},
		{string(FailQuotaExceeded), VerifyQuota},
		{string(FailUpstream4xx), VerifyUpstream4xx},
		{string(FailMissingKey), VerifyUpstream4xx},
		{string(FailUpstream5xx), VerifyUpstream5xx},
		{string(FailNetwork), VerifyUpstream5xx},
		{string(FailSchemaInvalid), VerifySchema},
		{string(FailImageInvalid), VerifyImageFetch},
		{string(FailUnknown), VerifyUnknown},
		{"SOME_FUTURE_REASON", VerifyUnknown},
		{VerifyBudgetGuard, VerifyBudgetGuard},
		{"", VerifyUnknown},
	}
	for _, c := range cases {
		if got := NormalizeVerifyReason(c.in); got != c.want {
			t.Errorf("NormalizeVerifyReason(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

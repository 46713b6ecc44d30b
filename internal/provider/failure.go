package provider

import (
	"context"
	"errors"
	"net"
	"strings"
)

// FailureReason is the provider-call level failure taxonomy.
type FailureReason string

const (
	FailMissingKey    FailureReason = "VISION_MISSING_KEY"
	FailTimeout       FailureReason = "VISION_TIMEOUT"
	FailNetwork       FailureReason = "VISION_NETWORK_ERROR"
	FailRateLimited   FailureReason = "VISION_RATE_LIMITED"
	FailQuotaExceeded FailureReason = "VISION_QUOTA_EXCEEDED"
	FailUpstream4xx   FailureReason = "VISION_UPSTREAM_4XX"
	FailUpstream5xx   FailureReason = "VISION_UPSTREAM_5XX"
	FailImageInvalid  FailureReason = "VISION_IMAGE_INVALID"
	FailSchemaInvalid FailureReason = "VISION_SCHEMA_INVALID"
	FailUnknown       FailureReason = "VISION_UNKNOWN"
)

// Verification-level reasons, the smaller allowlisted set hard cases and
// reliability aggregation are keyed on. Provider-level reasons are mapped
// onto these, never passed through raw.
const (
	VerifyTimeout     = "TIMEOUT"
	VerifyRateLimit   = "RATE_LIMIT"
	VerifyQuota       = "QUOTA"
	VerifyUpstream4xx = "UPSTREAM_4XX"
	VerifyUpstream5xx = "UPSTREAM_5XX"
	VerifySchema      = "SCHEMA_INVALID"
	VerifyImageFetch  = "IMAGE_FETCH_FAILED"
	VerifyUnknown     = "UNKNOWN"
	VerifyBudgetGuard = "VERIFY_BUDGET_GUARD"
)

// Classify maps a raw call failure onto the taxonomy. Priority order is
// fixed: timeout > network > auth > rate/quota > schema > status-code bands
// > keyword fallback. An already-classified *CallError passes through.
func Classify(err error, statusCode int) FailureReason {
	if err == nil && statusCode == 0 {
		return FailUnknown
	}
	var ce *CallError
	if errors.As(err, &ce) && ce.Reason != "" {
		return ce.Reason
	}

	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}

	// 1. Timeout: context deadline or net timeout.
	if errors.Is(err, context.DeadlineExceeded) || containsAny(msg, "timeout", "deadline exceeded", "timed out") {
		return FailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailTimeout
	}

	// 2. Network errors.
	var opErr *net.OpError
	if errors.As(err, &opErr) || containsAny(msg, "connection refused", "connection reset", "no such host", "network is unreachable", "econnrefused", "econnreset", "broken pipe") {
		return FailNetwork
	}

	// 3. Auth / missing key.
	if statusCode == 401 || statusCode == 403 || containsAny(msg, "api key", "missing key", "unauthorized", "permission denied", "forbidden") {
		return FailMissingKey
	}

	// 4. Rate limit and quota. Quota keywords win over the generic 429.
	if containsAny(msg, "quota", "billing", "exceeded your current", "resource_exhausted", "resource exhausted") {
		return FailQuotaExceeded
	}
	if statusCode == 429 || containsAny(msg, "rate limit", "too many requests", "429") {
		return FailRateLimited
	}

	// 5. Schema.
	if containsAny(msg, "schema", "unmarshal", "invalid json", "unexpected end of json", "cannot parse") {
		return FailSchemaInvalid
	}

	// 6. Status-code bands.
	if statusCode >= 500 {
		return FailUpstream5xx
	}
	if statusCode >= 400 {
		return FailUpstream4xx
	}

	// 7. Keyword fallback for image problems.
	if containsAny(msg, "image", "mime", "unsupported format", "decode", "base64") {
		return FailImageInvalid
	}

	return FailUnknown
}

// NormalizeVerifyReason maps any provider-level reason string onto the
// verification allowlist via substring rules. Downstream aggregation keys
// on these, so cardinality must stay bounded.
func NormalizeVerifyReason(reason string) string {
	if reason == "" {
		return VerifyUnknown
	}
	if reason == VerifyBudgetGuard {
		return VerifyBudgetGuard
	}
	up := strings.ToUpper(reason)
	switch {
	case strings.Contains(up, "TIMEOUT"):
		return VerifyTimeout
	case strings.Contains(up, "QUOTA"):
		return VerifyQuota
	case strings.Contains(up, "RATE"):
		return VerifyRateLimit
	case strings.Contains(up, "4XX"), strings.Contains(up, "MISSING_KEY"):
		return VerifyUpstream4xx
	case strings.Contains(up, "5XX"), strings.Contains(up, "NETWORK"):
		return VerifyUpstream5xx
	case strings.Contains(up, "SCHEMA"):
		return VerifySchema
	case strings.Contains(up, "IMAGE"):
		return VerifyImageFetch
	default:
		return VerifyUnknown
	}
}

// permanent reports whether a failure class should not be retried.
func permanent(reason FailureReason) bool {
	switch reason {
	case FailMissingKey, FailImageInvalid, FailSchemaInvalid, FailUpstream4xx, FailQuotaExceeded:
		return true
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

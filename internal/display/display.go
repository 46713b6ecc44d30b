// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans. Use these functions in
// CLI output and reports; keep raw codes for JSON fields, map keys, and
// equality comparisons.
package display

import "strings"

// --- Concern types ---

var concernTypes = map[string]string{
	"redness": "Redness",
	"acne":    "Acne",
	"shine":   "Shine / Oiliness",
	"texture": "Texture",
	"tone":    "Uneven Tone",
	"dryness": "Dryness",
	"barrier": "Barrier Damage",
	"other":   "Other",
}

// ConcernType returns the human-readable name for a concern type code.
// Unknown codes are returned as-is.
func ConcernType(code string) string {
	if name, ok := concernTypes[code]; ok {
		return name
	}
	return code
}

// --- Quality grades ---

var qualityGrades = map[string]string{
	"pass":     "Pass",
	"degraded": "Degraded",
	"reject":   "Reject",
}

// QualityGrade returns the human-readable quality grade.
func QualityGrade(code string) string {
	if name, ok := qualityGrades[code]; ok {
		return name
	}
	return code
}

// --- Failure reasons ---

var failureReasons = map[string]string{
	"VISION_MISSING_KEY":       "Missing API Key",
	"VISION_TIMEOUT":           "Timeout",
	"VISION_NETWORK_ERROR":     "Network Error",
	"VISION_RATE_LIMITED":      "Rate Limited",
	"VISION_QUOTA_EXCEEDED":    "Quota Exceeded",
	"VISION_UPSTREAM_4XX":      "Upstream Client Error",
	"VISION_UPSTREAM_5XX":      "Upstream Server Error",
	"VISION_IMAGE_INVALID":     "Invalid Image",
	"VISION_SCHEMA_INVALID":    "Invalid Response Schema",
	"VISION_UNKNOWN":           "Unknown Failure",
	"CANONICAL_SCHEMA_INVALID": "Fused Result Invalid",
	"VERIFY_BUDGET_GUARD":      "Verify Budget Exhausted",
	"TIMEOUT":                  "Timeout",
	"RATE_LIMIT":               "Rate Limited",
	"QUOTA":                    "Quota Exceeded",
	"UPSTREAM_4XX":             "Upstream Client Error",
	"UPSTREAM_5XX":             "Upstream Server Error",
	"SCHEMA_INVALID":           "Invalid Response Schema",
	"IMAGE_FETCH_FAILED":       "Image Fetch Failed",
	"UNKNOWN":                  "Unknown Failure",
}

// FailureReason returns the human-readable name for a failure code.
func FailureReason(code string) string {
	if name, ok := failureReasons[code]; ok {
		return name
	}
	return code
}

// --- Verdicts ---

var verdicts = map[string]string{
	"agree":     "Agree",
	"uncertain": "Uncertain",
	"disagree":  "Disagree",
}

// Verdict returns the human-readable verification verdict.
func Verdict(code string) string {
	if name, ok := verdicts[code]; ok {
		return name
	}
	return code
}

// --- Ineligibility reasons ---

var ineligibleReasons = map[string]string{
	"voting_disabled":                "Voting Disabled",
	"no_verify_calls":                "No Verify Calls",
	"fail_rate_above_max":            "Fail Rate Too High",
	"insufficient_agreement_samples": "Too Few Agreement Samples",
	"agreement_mean_below_min":       "Agreement Too Low",
	"agreement_stddev_above_max":     "Agreement Too Noisy",
	"insufficient_gold_samples":      "Too Few Gold Samples",
	"RELIABILITY_TABLE_MISSING":      "Reliability Table Missing",
	"BUCKET_NOT_FOUND":               "Bucket Not Found",
}

// IneligibleReason returns the human-readable vote-gate reason.
func IneligibleReason(code string) string {
	if name, ok := ineligibleReasons[code]; ok {
		return name
	}
	return code
}

// IneligibleReasons renders a reason list as one comma-joined string.
func IneligibleReasons(codes []string) string {
	if len(codes) == 0 {
		return ""
	}
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = IneligibleReason(c)
	}
	return strings.Join(names, ", ")
}

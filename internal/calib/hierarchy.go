package calib

import "strings"

// Context carries the bucket dimensions a calibration lookup can key on.
type Context struct {
	Provider     string
	QualityGrade string
	Tone         string
	Lighting     string
	Makeup       bool
	Filter       bool
}

// Level is one rung of the fallback hierarchy: a name and a key builder.
// The hierarchy is data, not control flow, so the fallback order stays
// auditable (and serializable into the trained model).
type Level struct {
	Name string
	Key  func(Context) string
}

// Hierarchy lists lookup levels most-specific-first; the first level with a
// trained bucket wins, global is the last resort (handled by the caller).
var Hierarchy = []Level{
	{
		Name: "provider_quality_tone_lighting_flags",
		Key: func(c Context) string {
			return join(c.Provider, c.QualityGrade, c.Tone, c.Lighting, flags(c))
		},
	},
	{
		Name: "provider_quality_tone_lighting",
		Key: func(c Context) string {
			return join(c.Provider, c.QualityGrade, c.Tone, c.Lighting)
		},
	},
	{
		Name: "provider_quality_tone",
		Key:  func(c Context) string { return join(c.Provider, c.QualityGrade, c.Tone) },
	},
	{
		Name: "provider_quality",
		Key:  func(c Context) string { return join(c.Provider, c.QualityGrade) },
	},
	{
		Name: "provider",
		Key:  func(c Context) string { return c.Provider },
	},
}

// HierarchyNames returns the level names in fallback order, recorded in the
// trained model for operators.
func HierarchyNames() []string {
	names := make([]string, len(Hierarchy))
	for i, l := range Hierarchy {
		names[i] = l.Name
	}
	return names
}

func join(parts ...string) string { return strings.Join(parts, "|") }

func flags(c Context) string {
	f := "m0f0"
	if c.Makeup && c.Filter {
		f = "m1f1"
	} else if c.Makeup {
		f = "m1f0"
	} else if c.Filter {
		f = "m0f1"
	}
	return f
}

// WeightBucketKey builds the provider-weight bucket key
// (provider, concern type, quality grade, tone).
func WeightBucketKey(provider, concernType, quality, tone string) string {
	return join(provider, concernType, quality, tone)
}

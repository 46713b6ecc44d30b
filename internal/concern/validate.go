package concern

import (
	"fmt"

	"prism/internal/region"
)

// knownTypes is the closed set a validated result may contain.
var knownTypes = func() map[Type]bool {
	m := make(map[Type]bool, len(AllTypes))
	for _, t := range AllTypes {
		m[t] = true
	}
	return m
}()

// ValidateConcern checks one concern against the canonical schema invariants.
func ValidateConcern(c *Concern) error {
	if !knownTypes[c.Type] {
		return fmt.Errorf("unknown concern type %q", c.Type)
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("concern %s: no regions", c.Type)
	}
	if len(c.Regions) > MaxRegionsPerConcern {
		return fmt.Errorf("concern %s: %d regions exceeds max %d", c.Type, len(c.Regions), MaxRegionsPerConcern)
	}
	for i := range c.Regions {
		if err := validateRegion(&c.Regions[i]); err != nil {
			return fmt.Errorf("concern %s region %d: %w", c.Type, i, err)
		}
	}
	if c.Severity < 0 || c.Severity > MaxSeverity {
		return fmt.Errorf("concern %s: severity %v out of [0,%v]", c.Type, c.Severity, MaxSeverity)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("concern %s: confidence %v out of [0,1]", c.Type, c.Confidence)
	}
	if len(c.EvidenceText) > MaxEvidenceTextLength {
		return fmt.Errorf("concern %s: evidence text %d chars exceeds %d", c.Type, len(c.EvidenceText), MaxEvidenceTextLength)
	}
	switch c.QualitySensitivity {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
	default:
		return fmt.Errorf("concern %s: bad quality sensitivity %q", c.Type, c.QualitySensitivity)
	}
	if c.Provenance.Provider == "" {
		return fmt.Errorf("concern %s: missing provenance provider", c.Type)
	}
	return nil
}

func validateRegion(r *region.Region) error {
	switch r.Kind {
	case region.KindBbox:
		if r.Box == nil {
			return fmt.Errorf("bbox region without box")
		}
	case region.KindPolygon:
		if len(r.Points) < 3 {
			return fmt.Errorf("polygon with %d points", len(r.Points))
		}
	case region.KindHeatmap:
		if r.Rows <= 0 || r.Cols <= 0 || len(r.Values) != r.Rows*r.Cols {
			return fmt.Errorf("heatmap shape %dx%d with %d values", r.Rows, r.Cols, len(r.Values))
		}
	default:
		return fmt.Errorf("unknown region kind %q", r.Kind)
	}
	return nil
}

// ValidateResult checks a full canonical result. Every fused concern must
// trace back to at least one source via provenance source ids.
func ValidateResult(res *CanonicalResult) error {
	if len(res.Concerns) > MaxConcernsPerResult {
		return fmt.Errorf("%d concerns exceeds max %d", len(res.Concerns), MaxConcernsPerResult)
	}
	for i := range res.Concerns {
		if err := ValidateConcern(&res.Concerns[i]); err != nil {
			return err
		}
		if len(res.Concerns[i].Provenance.SourceIDs) == 0 {
			return fmt.Errorf("concern %s: fused concern has no source ids", res.Concerns[i].Type)
		}
	}
	if res.AgreementScore < 0 || res.AgreementScore > 1 {
		return fmt.Errorf("agreement score %v out of [0,1]", res.AgreementScore)
	}
	for i := range res.Conflicts {
		switch res.Conflicts[i].Kind {
		case ConflictSeverity, ConflictRegion, ConflictType:
		default:
			return fmt.Errorf("unknown conflict kind %q", res.Conflicts[i].Kind)
		}
	}
	return nil
}

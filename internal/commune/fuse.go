package commune

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DuplicatePolicy decides what happens when several coverage records share a code.
type DuplicatePolicy string

const (
	// KeepFirst keeps the first record in source order.
	KeepFirst DuplicatePolicy = "first"
	// RejectDuplicates fails the join.
	RejectDuplicates DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy validates a configured policy name. Empty means KeepFirst.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", KeepFirst:
		return KeepFirst, nil
	case RejectDuplicates:
		return RejectDuplicates, nil
	default:
		return "", eris.Errorf("commune: unknown duplicate policy %q", s)
	}
}

// IndexCoverage builds the lookup table for Fuse. Records with an invalid code
// are skipped since they can never match.
func IndexCoverage(records []CoverageRecord, policy DuplicatePolicy) (map[Code]CoverageRecord, error) {
	index := make(map[Code]CoverageRecord, len(records))
	duplicates := 0
	skipped := 0
	for _, r := range records {
		if !r.Code.Valid() {
			skipped++
			continue
		}
		if _, seen := index[r.Code]; seen {
			if policy == RejectDuplicates {
				return nil, &SourceError{
					Kind:   KindJoinAmbiguity,
					Source: "coverage",
					Err:    eris.Errorf("several coverage records for code %s", r.Code),
				}
			}
			duplicates++
			continue
		}
		index[r.Code] = r
	}

	if duplicates > 0 || skipped > 0 {
		zap.L().Warn("commune: coverage records ignored",
			zap.Int("duplicates", duplicates),
			zap.Int("invalid_codes", skipped),
		)
	}
	return index, nil
}

// Fuse left-joins geometries with coverage records on the normalized code.
// Every geometry yields exactly one feature, in input order; a geometry with
// no coverage record gets PctFiber 0. A matched record with a null
// percentage is also filled with 0. FillColor is left for the classifier.
func Fuse(geometries []Geometry, records []CoverageRecord, policy DuplicatePolicy) ([]FusedFeature, error) {
	index, err := IndexCoverage(records, policy)
	if err != nil {
		return nil, err
	}

	fused := make([]FusedFeature, 0, len(geometries))
	for _, g := range geometries {
		f := FusedFeature{Geometry: g}
		if g.Code.Valid() {
			if r, ok := index[g.Code]; ok {
				f.Matched = true
				f.LocationCount = r.LocationCount
				if r.PctFiber != nil {
					f.PctFiber = *r.PctFiber
				}
			}
		}
		fused = append(fused, f)
	}
	return fused, nil
}

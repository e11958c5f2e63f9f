// Package coverage loads per-commune fibre coverage from a CSV file or a
// database table and exports the table back to CSV.
package coverage

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fibre-map/internal/commune"
)

// sourceName labels coverage failures in commune.SourceError.
const sourceName = "coverage"

// Source yields coverage records keyed by normalized commune code.
type Source interface {
	Coverage(ctx context.Context) ([]commune.CoverageRecord, error)
}

// Columns names the source columns holding the code, the fibre percentage
// and the location count. Count is optional.
type Columns struct {
	Code  string
	Pct   string
	Count string
}

// Canonical column names after renaming.
const (
	colCode  = "code"
	colPct   = "pct_fiber"
	colCount = "location_count"
)

// rename maps a source column to its canonical name. Unrelated columns get a
// prefix so they can never shadow a canonical one.
func (c Columns) rename(name string) string {
	switch name {
	case c.Code:
		return colCode
	case c.Pct:
		return colPct
	case c.Count:
		if c.Count != "" {
			return colCount
		}
	}
	return "src." + name
}

// percent drops NaN so it is handled like an absent value. An infinite
// percentage is an error.
func percent(v *float64) (*float64, error) {
	switch {
	case v == nil || math.IsNaN(*v):
		return nil, nil
	case math.IsInf(*v, 0):
		return nil, eris.Errorf("percentage %v is not finite", *v)
	}
	return v, nil
}

// count converts a decoded count. Negative and non-finite values are dropped.
func count(v *float64) *int64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return nil
	}
	n := int64(math.Round(*v))
	return &n
}

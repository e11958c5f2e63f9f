package commune

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/fibre-map/internal/palette"
)

// Geometry is a commune boundary from the geometry source.
type Geometry struct {
	Code       Code
	Name       string
	Department string
	Shape      geom.T
}

// CoverageRecord is one row of the coverage source.
type CoverageRecord struct {
	Code          Code
	PctFiber      *float64
	LocationCount *int64
}

// FusedFeature is a commune boundary joined with its coverage. PctFiber is 0
// for communes without a coverage record; Matched tells the two cases apart.
type FusedFeature struct {
	Geometry
	PctFiber      float64
	LocationCount *int64
	Matched       bool
	FillColor     palette.Color
}

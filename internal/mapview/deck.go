// Package mapview packages fused communes into a deck.gl GeoJsonLayer and
// renders the map page around it.
package mapview

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/palette"
)

// Initial viewport over metropolitan France.
const (
	InitialLatitude  = 46.5
	InitialLongitude = 2.5
	InitialZoom      = 5
	MaxZoom          = 15
)

// TooltipHTML interpolates the commune name and its fibre percentage.
const TooltipHTML = "<b>{name}</b><br/>Fibre : {pct_fiber}%"

// LineColor outlines every commune.
var LineColor = palette.Color{R: 128, G: 128, B: 128}

// ViewState is the deck.gl initial view.
type ViewState struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
	MaxZoom   float64 `json:"maxZoom"`
	Pitch     float64 `json:"pitch"`
	Bearing   float64 `json:"bearing"`
}

// Tooltip is a deck.gl tooltip template with its CSS.
type Tooltip struct {
	HTML  string            `json:"html"`
	Style map[string]string `json:"style"`
}

// Properties are the per-feature attributes the layer and tooltip read.
type Properties struct {
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Department    string        `json:"department,omitempty"`
	PctFiber      float64       `json:"pct_fiber"`
	LocationCount *int64        `json:"location_count"`
	Matched       bool          `json:"matched"`
	FillColor     palette.Color `json:"fill_color"`
}

// Feature is one commune of the layer data.
type Feature struct {
	Type       string            `json:"type"`
	ID         string            `json:"id,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties Properties        `json:"properties"`
}

// FeatureCollection is the layer data.
type FeatureCollection struct {
	Type     string    `json:"type"`
	BBox     []float64 `json:"bbox,omitempty"`
	Features []Feature `json:"features"`
}

// Layer is a deck.gl GeoJsonLayer in the JSON form pydeck and @deck.gl/json use.
type Layer struct {
	Type          string            `json:"@@type"`
	ID            string            `json:"id"`
	Data          FeatureCollection `json:"data"`
	Opacity       float64           `json:"opacity"`
	Stroked       bool              `json:"stroked"`
	Filled        bool              `json:"filled"`
	Extruded      bool              `json:"extruded"`
	Wireframe     bool              `json:"wireframe"`
	GetFillColor  string            `json:"getFillColor"`
	GetLineColor  palette.Color     `json:"getLineColor"`
	GetLineWidth  float64           `json:"getLineWidth"`
	Pickable      bool              `json:"pickable"`
	AutoHighlight bool              `json:"autoHighlight"`
}

// Deck is the renderable map: one layer, a fixed viewport and a tooltip.
type Deck struct {
	InitialViewState ViewState `json:"initialViewState"`
	MapStyle         string    `json:"mapStyle"`
	Layers           []Layer   `json:"layers"`
	Tooltip          Tooltip   `json:"tooltip"`
}

// Assemble packages fused and colored features into a deck. A geometry that
// cannot be encoded fails the whole assembly; a commune without geometry is
// kept with a null geometry.
func Assemble(features []commune.FusedFeature) (*Deck, error) {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(features))}

	bounds := geom.NewBounds(geom.XY)
	extended := false
	for i, f := range features {
		if math.IsNaN(f.PctFiber) || math.IsInf(f.PctFiber, 0) {
			return nil, eris.Errorf("mapview: feature %d (%s) has non-finite pct_fiber %v", i, f.Code, f.PctFiber)
		}
		var g *geojson.Geometry
		if f.Shape != nil {
			var err error
			g, err = geojson.Encode(f.Shape)
			if err != nil {
				return nil, eris.Wrapf(err, "mapview: encode geometry of feature %d (%s)", i, f.Code)
			}
			if b := f.Shape.Bounds(); !math.IsInf(b.Min(0), 0) {
				bounds.Extend(f.Shape)
				extended = true
			}
		}
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			ID:       f.Code.String(),
			Geometry: g,
			Properties: Properties{
				Code:          f.Code.String(),
				Name:          f.Name,
				Department:    f.Department,
				PctFiber:      f.PctFiber,
				LocationCount: f.LocationCount,
				Matched:       f.Matched,
				FillColor:     f.FillColor,
			},
		})
	}
	if extended {
		fc.BBox = []float64{bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)}
	}

	return &Deck{
		InitialViewState: ViewState{
			Latitude:  InitialLatitude,
			Longitude: InitialLongitude,
			Zoom:      InitialZoom,
			MaxZoom:   MaxZoom,
		},
		MapStyle: "light",
		Layers: []Layer{{
			Type:          "GeoJsonLayer",
			ID:            "communes",
			Data:          fc,
			Opacity:       0.8,
			Stroked:       true,
			Filled:        true,
			Extruded:      false,
			Wireframe:     true,
			GetFillColor:  "@@=properties.fill_color",
			GetLineColor:  LineColor,
			GetLineWidth:  1,
			Pickable:      true,
			AutoHighlight: true,
		}},
		Tooltip: Tooltip{
			HTML: TooltipHTML,
			Style: map[string]string{
				"background": "white",
				"color":      "black",
				"font-size":  "14px",
				"padding":    "5px",
			},
		},
	}, nil
}

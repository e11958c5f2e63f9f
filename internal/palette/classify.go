// Package palette maps fibre coverage percentages to the fixed choropleth color scale.
package palette

import (
	"encoding/json"
	"fmt"
	"math"
)

// Color is an RGB triple. It encodes as a JSON array, which is the form deck.gl accepts.
type Color struct {
	R, G, B uint8
}

// MarshalJSON encodes the color as [r,g,b].
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint8{c.R, c.G, c.B})
}

// UnmarshalJSON decodes a [r,g,b] array.
func (c *Color) UnmarshalJSON(data []byte) error {
	var rgb [3]uint8
	if err := json.Unmarshal(data, &rgb); err != nil {
		return err
	}
	c.R, c.G, c.B = rgb[0], rgb[1], rgb[2]
	return nil
}

// CSS returns the color as an rgb() expression.
func (c Color) CSS() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Palette members.
var (
	Missing  = Color{200, 200, 200}
	Bucket90 = Color{92, 83, 17}
	Bucket70 = Color{138, 125, 26}
	Bucket50 = Color{184, 166, 35}
	Bucket30 = Color{217, 196, 42}
	Bucket10 = Color{222, 209, 129}
	Bucket0  = Color{255, 241, 174}
)

// bucket is a closed lower bound and the color used at or above it.
type bucket struct {
	min   float64
	color Color
}

// buckets are ordered highest first so a value resolves to the highest applicable bucket.
var buckets = []bucket{
	{90, Bucket90},
	{70, Bucket70},
	{50, Bucket50},
	{30, Bucket30},
	{10, Bucket10},
}

// Classify returns the fill color for a coverage percentage. A nil or NaN
// percentage is missing data, which is distinct from a known zero.
func Classify(pct *float64) Color {
	if pct == nil || math.IsNaN(*pct) {
		return Missing
	}
	return ForPercent(*pct)
}

// ForPercent returns the fill color for a known coverage percentage.
func ForPercent(pct float64) Color {
	if math.IsNaN(pct) {
		return Missing
	}
	for _, b := range buckets {
		if pct >= b.min {
			return b.color
		}
	}
	return Bucket0
}

// Colors returns every member of the palette, top bucket first and missing last.
func Colors() []Color {
	return []Color{Bucket90, Bucket70, Bucket50, Bucket30, Bucket10, Bucket0, Missing}
}

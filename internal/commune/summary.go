package commune

import (
	"encoding/json"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary holds the coverage statistics shown beside the map.
type Summary struct {
	Total        int     `json:"total"`
	Matched      int     `json:"matched"`
	MeanPct      float64 `json:"-"`
	FullCount    int     `json:"full_count"`
	Below50Count int     `json:"below_50_count"`
}

// Summarize reduces the fused dataset. The mean is NaN for an empty dataset.
func Summarize(features []FusedFeature) Summary {
	s := Summary{Total: len(features), MeanPct: math.NaN()}
	if len(features) == 0 {
		return s
	}

	var sum float64
	for _, f := range features {
		sum += f.PctFiber
		if f.Matched {
			s.Matched++
		}
		if f.PctFiber >= 100 {
			s.FullCount++
		}
		if f.PctFiber < 50 {
			s.Below50Count++
		}
	}
	s.MeanPct = sum / float64(len(features))
	return s
}

// HasMean reports whether the mean is defined.
func (s Summary) HasMean() bool {
	return !math.IsNaN(s.MeanPct)
}

// RoundedMean returns the mean rounded to one decimal, or nil when undefined.
func (s Summary) RoundedMean() *float64 {
	if !s.HasMean() {
		return nil
	}
	v := math.Round(s.MeanPct*10) / 10
	return &v
}

// MarshalJSON encodes the mean rounded to one decimal, null when undefined.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		MeanPct *float64 `json:"mean_pct"`
	}{plain: plain(s), MeanPct: s.RoundedMean()})
}

// Metrics are the formatted summary values.
type Metrics struct {
	Mean    string `json:"mean"`
	Full    string `json:"full"`
	Below50 string `json:"below_50"`
}

// Format renders the summary for display in the given language.
func (s Summary) Format(tag language.Tag) Metrics {
	p := message.NewPrinter(tag)
	m := Metrics{
		Mean:    "n/a",
		Full:    p.Sprintf("%d", s.FullCount),
		Below50: p.Sprintf("%d", s.Below50Count),
	}
	if mean := s.RoundedMean(); mean != nil {
		m.Mean = p.Sprintf("%.1f", *mean) + "%"
	}
	return m
}

package palette

// LegendEntry is one row of the map legend.
type LegendEntry struct {
	Label string `json:"label"`
	Color Color  `json:"color"`
}

// Legend returns the legend rows in display order.
func Legend() []LegendEntry {
	return []LegendEntry{
		{Label: "90-100%", Color: Bucket90},
		{Label: "70-89%", Color: Bucket70},
		{Label: "50-69%", Color: Bucket50},
		{Label: "30-49%", Color: Bucket30},
		{Label: "10-29%", Color: Bucket10},
		{Label: "0-9%", Color: Bucket0},
		{Label: "Données manquantes", Color: Missing},
	}
}

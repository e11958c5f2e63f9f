package mapview

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/palette"
)

// Title heads the map page.
const Title = "Carte de la couverture fibre en France métropolitaine"

//go:embed page.html.tmpl
var pageSource string

var pageTemplate = template.Must(template.New("page").Parse(pageSource))

type legendItem struct {
	Label  string
	Swatch template.CSS
}

type pageData struct {
	Title   string
	Error   string
	Deck    template.JS
	Legend  []legendItem
	Metrics commune.Metrics
}

func legendItems() []legendItem {
	entries := palette.Legend()
	items := make([]legendItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, legendItem{Label: e.Label, Swatch: template.CSS(e.Color.CSS())})
	}
	return items
}

// RenderPage writes the map page with its legend and the three metrics. A
// deck that cannot be marshalled is an error and nothing is written.
func RenderPage(w io.Writer, deck *Deck, metrics commune.Metrics) error {
	if deck == nil {
		return eris.New("mapview: nil deck")
	}
	// encoding/json escapes <, > and & so the result is safe inside <script>.
	raw, err := json.Marshal(deck)
	if err != nil {
		return eris.Wrap(err, "mapview: marshal deck")
	}
	err = pageTemplate.Execute(w, pageData{
		Title:   Title,
		Deck:    template.JS(raw),
		Legend:  legendItems(),
		Metrics: metrics,
	})
	return eris.Wrap(err, "mapview: render page")
}

// RenderError writes the page with a single error panel and no map.
func RenderError(w io.Writer, cause error) error {
	msg := "erreur inconnue"
	if cause != nil {
		msg = cause.Error()
	}
	err := pageTemplate.Execute(w, pageData{Title: Title, Error: msg})
	return eris.Wrap(err, "mapview: render error page")
}

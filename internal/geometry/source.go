// Package geometry loads commune boundaries from a GeoJSON feature collection.
package geometry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/fetcher"
)

const sourceName = "geometry"

// Fields names the feature properties that carry the code, name and
// optional department. They are renamed to the canonical fields on load.
type Fields struct {
	Code       string
	Name       string
	Department string
}

// Source reads commune boundaries from a local path or an http(s) URL.
type Source struct {
	fetcher  fetcher.Fetcher
	location string
	tempDir  string
	fields   Fields
}

// NewSource creates a geometry source. Remote files are staged under tempDir.
func NewSource(f fetcher.Fetcher, location, tempDir string, fields Fields) *Source {
	return &Source{fetcher: f, location: location, tempDir: tempDir, fields: fields}
}

// Geometries downloads the collection to a staging directory, decodes it and
// removes the staging directory before returning, whatever the outcome.
func (s *Source) Geometries(ctx context.Context) ([]commune.Geometry, error) {
	log := zap.L().With(
		zap.String("component", "geometry.source"),
		zap.String("location", s.location),
	)

	staged, err := fetcher.Stage(ctx, s.fetcher, s.location, s.tempDir, "communes.geojson")
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrap(err, "stage geojson"))
	}
	defer func() {
		if err := staged.Close(); err != nil {
			log.Warn("geometry: cleanup failed", zap.Error(err))
		}
	}()

	file, err := os.Open(staged.Path)
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrap(err, "open staged geojson"))
	}
	defer file.Close() //nolint:errcheck

	geometries, err := Decode(file, s.fields)
	if err != nil {
		return nil, err
	}

	log.Info("geometry: loaded communes", zap.Int("count", len(geometries)))
	return geometries, nil
}

// Decode parses a GeoJSON FeatureCollection into commune geometries, in
// feature order. A feature missing the code or name property is a schema
// mismatch; a present but null code becomes the invalid code.
func Decode(r io.Reader, fields Fields) ([]commune.Geometry, error) {
	if fields.Code == "" || fields.Name == "" {
		return nil, commune.SchemaMismatch(sourceName, eris.New("code and name fields must be configured"))
	}

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, commune.SchemaMismatch(sourceName, eris.Wrap(err, "decode feature collection"))
	}

	geometries := make([]commune.Geometry, 0, len(fc.Features))
	for i, f := range fc.Features {
		rawCode, ok := f.Properties[fields.Code]
		if !ok {
			return nil, commune.SchemaMismatch(sourceName, eris.Errorf("feature %d has no %q property", i, fields.Code))
		}
		rawName, ok := f.Properties[fields.Name]
		if !ok {
			return nil, commune.SchemaMismatch(sourceName, eris.Errorf("feature %d has no %q property", i, fields.Name))
		}

		g := commune.Geometry{
			Code:  commune.NormalizeCode(rawCode),
			Name:  text(rawName),
			Shape: f.Geometry,
		}
		if fields.Department != "" {
			g.Department = text(f.Properties[fields.Department])
		} else {
			g.Department = g.Code.Department()
		}
		geometries = append(geometries, g)
	}
	return geometries, nil
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

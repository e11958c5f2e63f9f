package coverage

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/fetcher"
)

// CSVSource reads coverage from a CSV file at a local path or http(s) URL.
type CSVSource struct {
	fetcher  fetcher.Fetcher
	location string
	columns  Columns
}

// NewCSVSource creates a CSV coverage source.
func NewCSVSource(f fetcher.Fetcher, location string, columns Columns) *CSVSource {
	return &CSVSource{fetcher: f, location: location, columns: columns}
}

// Coverage implements Source.
func (s *CSVSource) Coverage(ctx context.Context) ([]commune.CoverageRecord, error) {
	rc, err := fetcher.Open(ctx, s.fetcher, s.location)
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrapf(err, "open %s", s.location))
	}
	defer rc.Close() //nolint:errcheck

	records, err := DecodeCSV(rc, s.columns)
	if err != nil {
		return nil, err
	}

	zap.L().With(zap.String("component", "coverage.csv")).Info("coverage: loaded csv",
		zap.String("location", s.location),
		zap.Int("records", len(records)),
	)
	return records, nil
}

type csvRow struct {
	Code          string   `csv:"code"`
	PctFiber      *float64 `csv:"pct_fiber"`
	LocationCount *float64 `csv:"location_count"`
}

// DecodeCSV reads coverage rows in file order. The header must contain the
// code and percentage columns; other columns are ignored.
func DecodeCSV(r io.Reader, columns Columns) ([]commune.CoverageRecord, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, commune.SchemaMismatch(sourceName, eris.New("csv has no header"))
	}
	if err != nil {
		return nil, commune.SchemaMismatch(sourceName, eris.Wrap(err, "read csv header"))
	}

	renamed := make([]string, len(header))
	var hasCode, hasPct bool
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		renamed[i] = columns.rename(h)
		switch renamed[i] {
		case colCode:
			hasCode = true
		case colPct:
			hasPct = true
		}
	}
	if !hasCode {
		return nil, commune.SchemaMismatch(sourceName, eris.Errorf("csv has no %q column", columns.Code))
	}
	if !hasPct {
		return nil, commune.SchemaMismatch(sourceName, eris.Errorf("csv has no %q column", columns.Pct))
	}

	dec, err := csvutil.NewDecoder(cr, renamed...)
	if err != nil {
		return nil, commune.SchemaMismatch(sourceName, eris.Wrap(err, "create csv decoder"))
	}

	var records []commune.CoverageRecord
	for {
		var row csvRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, commune.SchemaMismatch(sourceName, eris.Wrapf(err, "decode csv row %d", len(records)+1))
		}
		pct, err := percent(row.PctFiber)
		if err != nil {
			return nil, commune.SchemaMismatch(sourceName, eris.Wrapf(err, "csv row %d: %s", len(records)+1, columns.Pct))
		}
		records = append(records, commune.CoverageRecord{
			Code:          commune.NormalizeCode(row.Code),
			PctFiber:      pct,
			LocationCount: count(row.LocationCount),
		})
	}
	return records, nil
}

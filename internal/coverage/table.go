package coverage

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fibre-map/internal/commune"
)

// Table is the full result of SELECT * on the coverage table.
type Table struct {
	Columns []string
	Rows    [][]any
}

// TableReader reads the coverage table from a database.
type TableReader interface {
	ReadTable(ctx context.Context) (*Table, error)
	CountRows(ctx context.Context) (int64, error)
}

// DatabaseSource reads coverage from a database table.
type DatabaseSource struct {
	reader  TableReader
	columns Columns
}

// NewDatabaseSource creates a database coverage source.
func NewDatabaseSource(reader TableReader, columns Columns) *DatabaseSource {
	return &DatabaseSource{reader: reader, columns: columns}
}

// Coverage implements Source.
func (s *DatabaseSource) Coverage(ctx context.Context) ([]commune.CoverageRecord, error) {
	table, err := s.reader.ReadTable(ctx)
	if err != nil {
		return nil, err
	}
	records, err := table.Records(s.columns)
	if err != nil {
		return nil, err
	}
	zap.L().With(zap.String("component", "coverage.database")).Info("coverage: loaded table",
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Records converts the rows into coverage records, in row order.
func (t *Table) Records(columns Columns) ([]commune.CoverageRecord, error) {
	codeIdx, pctIdx, countIdx := -1, -1, -1
	for i, name := range t.Columns {
		switch columns.rename(name) {
		case colCode:
			codeIdx = i
		case colPct:
			pctIdx = i
		case colCount:
			countIdx = i
		}
	}
	if codeIdx < 0 {
		return nil, commune.SchemaMismatch(sourceName, eris.Errorf("table has no %q column", columns.Code))
	}
	if pctIdx < 0 {
		return nil, commune.SchemaMismatch(sourceName, eris.Errorf("table has no %q column", columns.Pct))
	}

	records := make([]commune.CoverageRecord, 0, len(t.Rows))
	for n, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, commune.SchemaMismatch(sourceName, eris.Errorf("row %d has %d values, want %d", n+1, len(row), len(t.Columns)))
		}
		raw, err := toFloat(row[pctIdx])
		if err != nil {
			return nil, commune.SchemaMismatch(sourceName, eris.Wrapf(err, "row %d: %s", n+1, columns.Pct))
		}
		pct, err := percent(raw)
		if err != nil {
			return nil, commune.SchemaMismatch(sourceName, eris.Wrapf(err, "row %d: %s", n+1, columns.Pct))
		}
		rec := commune.CoverageRecord{
			Code:     commune.NormalizeCode(row[codeIdx]),
			PctFiber: pct,
		}
		if countIdx >= 0 {
			c, err := toFloat(row[countIdx])
			if err != nil {
				return nil, commune.SchemaMismatch(sourceName, eris.Wrapf(err, "row %d: %s", n+1, columns.Count))
			}
			rec.LocationCount = count(c)
		}
		records = append(records, rec)
	}
	return records, nil
}

// toFloat reads a numeric cell as returned by pgx or database/sql. Nil and
// empty text are absent values.
func toFloat(v any) (*float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case int16:
		f = float64(x)
	case int:
		f = float64(x)
	case pgtype.Numeric:
		fv, err := x.Float64Value()
		if err != nil {
			return nil, eris.Wrap(err, "numeric value")
		}
		if !fv.Valid {
			return nil, nil
		}
		f = fv.Float64
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	default:
		return nil, eris.Errorf("unsupported numeric type %T", v)
	}
	return &f, nil
}

func parseFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %q", s)
	}
	return &f, nil
}

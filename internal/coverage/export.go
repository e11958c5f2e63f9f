package coverage

import (
	"context"
	"database/sql/driver"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Export writes every column of the coverage table to a CSV file at path,
// creating parent directories, and returns the number of rows written. The
// file is staged next to path and renamed into place; a failed export
// leaves no file.
func Export(ctx context.Context, reader TableReader, path string) (int, error) {
	log := zap.L().With(zap.String("component", "coverage.export"), zap.String("path", path))

	table, err := reader.ReadTable(ctx)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, eris.Wrap(err, "export: create directory")
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fibre-export-*.csv")
	if err != nil {
		return 0, eris.Wrap(err, "export: create file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := WriteCSV(tmp, table); err != nil {
		tmp.Close() //nolint:errcheck
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, eris.Wrap(err, "export: close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, eris.Wrap(err, "export: move file into place")
	}

	log.Info("coverage: exported table", zap.Int("rows", len(table.Rows)))
	return len(table.Rows), nil
}

// WriteCSV writes the header and every row of table to w.
func WriteCSV(out io.Writer, table *Table) error {
	w := csv.NewWriter(out)
	if err := w.Write(table.Columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	record := make([]string, len(table.Columns))
	for i, row := range table.Rows {
		for j := range record {
			record[j] = ""
			if j < len(row) {
				record[j] = cell(row[j])
			}
		}
		if err := w.Write(record); err != nil {
			return eris.Wrapf(err, "export: write row %d", i+1)
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush")
}

// cell formats a database value for CSV. Nulls become empty cells.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339)
	case pgtype.Numeric:
		f, err := toFloat(x)
		if err != nil || f == nil {
			return ""
		}
		return strconv.FormatFloat(*f, 'f', -1, 64)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil || dv == nil {
			return ""
		}
		if s, ok := dv.(string); ok {
			return s
		}
		return cell(dv)
	default:
		return fmt.Sprint(x)
	}
}

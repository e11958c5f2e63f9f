package coverage

import (
	"context"
	"database/sql"
	"os"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/db"
)

// SQLiteTable reads the coverage table from a SQLite file, typically a local
// snapshot of the Postgres table.
type SQLiteTable struct {
	path  string
	table string
}

// NewSQLiteTable creates a reader for table in the database file at path.
func NewSQLiteTable(path, table string) *SQLiteTable {
	return &SQLiteTable{path: path, table: table}
}

// open refuses a missing file, which sqlite would otherwise create empty.
func (s *SQLiteTable) open(ctx context.Context) (*sql.DB, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrap(err, "sqlite: stat database"))
	}
	conn, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrap(err, "sqlite: open"))
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close() //nolint:errcheck
		return nil, commune.Unavailable(sourceName, eris.Wrap(err, "sqlite: ping"))
	}
	return conn, nil
}

// ReadTable implements TableReader.
func (s *SQLiteTable) ReadTable(ctx context.Context) (*Table, error) {
	conn, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck

	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+db.QuoteTable(s.table))
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrapf(err, "sqlite: query %s", s.table))
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrap(err, "sqlite: columns"))
	}
	table := &Table{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, commune.Unavailable(sourceName, eris.Wrap(err, "sqlite: scan row"))
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrapf(err, "sqlite: query %s", s.table))
	}
	return table, nil
}

// CountRows implements TableReader.
func (s *SQLiteTable) CountRows(ctx context.Context) (int64, error) {
	conn, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close() //nolint:errcheck

	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+db.QuoteTable(s.table)).Scan(&n); err != nil {
		return 0, commune.Unavailable(sourceName, eris.Wrapf(err, "sqlite: count %s", s.table))
	}
	return n, nil
}

package coverage

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/db"
)

// PostgresTable reads the coverage table from Postgres. Each call opens its
// own pool and closes it before returning.
type PostgresTable struct {
	open  db.Opener
	table string
}

// NewPostgresTable creates a reader for table, a possibly schema-qualified name.
func NewPostgresTable(open db.Opener, table string) *PostgresTable {
	return &PostgresTable{open: open, table: table}
}

// ReadTable implements TableReader.
func (p *PostgresTable) ReadTable(ctx context.Context) (*Table, error) {
	pool, err := p.open(ctx)
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrap(err, "postgres: connect"))
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, "SELECT * FROM "+db.QuoteTable(p.table))
	if err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrapf(err, "postgres: query %s", p.table))
	}
	defer rows.Close()

	table := &Table{}
	for _, fd := range rows.FieldDescriptions() {
		table.Columns = append(table.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, commune.Unavailable(sourceName, eris.Wrap(err, "postgres: read row"))
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, commune.Unavailable(sourceName, eris.Wrapf(err, "postgres: query %s", p.table))
	}
	return table, nil
}

// CountRows implements TableReader.
func (p *PostgresTable) CountRows(ctx context.Context) (int64, error) {
	pool, err := p.open(ctx)
	if err != nil {
		return 0, commune.Unavailable(sourceName, eris.Wrap(err, "postgres: connect"))
	}
	defer pool.Close()

	var n int64
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+db.QuoteTable(p.table)).Scan(&n); err != nil {
		return 0, commune.Unavailable(sourceName, eris.Wrapf(err, "postgres: count %s", p.table))
	}
	return n, nil
}

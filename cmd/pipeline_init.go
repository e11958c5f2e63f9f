package main

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/config"
	"github.com/sells-group/fibre-map/internal/coverage"
	"github.com/sells-group/fibre-map/internal/db"
	"github.com/sells-group/fibre-map/internal/fetcher"
	"github.com/sells-group/fibre-map/internal/geometry"
	"github.com/sells-group/fibre-map/internal/pipeline"
)

func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Fetch.UserAgent,
		Timeout:    c.Fetch.Timeout(),
		MaxRetries: c.Fetch.MaxRetries,
		RatePerSec: c.Fetch.RatePerSec,
	})
}

func coverageColumns(c *config.Config) coverage.Columns {
	return coverage.Columns{
		Code:  c.Coverage.CodeColumn,
		Pct:   c.Coverage.PctColumn,
		Count: c.Coverage.CountColumn,
	}
}

// newTableReader picks the database backend for the coverage table.
func newTableReader(c *config.Config) (coverage.TableReader, error) {
	switch c.Database.Driver {
	case "postgres":
		return coverage.NewPostgresTable(db.NewOpener(c.Database.DSN()), c.Database.Table), nil
	case "sqlite":
		return coverage.NewSQLiteTable(c.Database.Path, c.Database.Table), nil
	default:
		return nil, eris.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
}

func newCoverageSource(c *config.Config, f fetcher.Fetcher) (coverage.Source, error) {
	switch c.Coverage.Source {
	case config.SourceFile:
		return coverage.NewCSVSource(f, c.Coverage.URL, coverageColumns(c)), nil
	case config.SourceDatabase:
		reader, err := newTableReader(c)
		if err != nil {
			return nil, err
		}
		return coverage.NewDatabaseSource(reader, coverageColumns(c)), nil
	default:
		return nil, eris.Errorf("unknown coverage source: %s", c.Coverage.Source)
	}
}

// initPipeline builds the session pipeline from the configuration.
func initPipeline(c *config.Config, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	policy, err := commune.ParseDuplicatePolicy(c.Coverage.Duplicates)
	if err != nil {
		return nil, err
	}

	f := newFetcher(c)
	cov, err := newCoverageSource(c, f)
	if err != nil {
		return nil, err
	}
	geo := geometry.NewSource(f, c.Geometry.URL, c.Geometry.TempDir, geometry.Fields{
		Code:       c.Geometry.CodeField,
		Name:       c.Geometry.NameField,
		Department: c.Geometry.DepartmentField,
	})
	return pipeline.New(geo, cov, policy, opts...), nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fibre-map/internal/config"
	"github.com/sells-group/fibre-map/internal/coverage"
	"github.com/sells-group/fibre-map/internal/fetcher"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to the data sources",
}

var checkDBCmd = &cobra.Command{
	Use:   "db",
	Short: "Connect to the coverage database and count the table rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("check"); err != nil {
			return err
		}
		reader, err := newTableReader(cfg)
		if err != nil {
			return err
		}
		return runCheckDB(cmd.Context(), reader, cfg.Database.Table, cmd.OutOrStdout())
	},
}

var checkNetCmd = &cobra.Command{
	Use:   "net",
	Short: "Probe the configured geometry and coverage locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		locations := []string{cfg.Geometry.URL}
		if cfg.Coverage.Source == config.SourceFile {
			locations = append(locations, cfg.Coverage.URL)
		}
		return runCheckNet(cmd.Context(), newFetcher(cfg), locations, cmd.OutOrStdout())
	},
}

func runCheckDB(ctx context.Context, reader coverage.TableReader, table string, w io.Writer) error {
	n, err := reader.CountRows(ctx)
	if err != nil {
		fmt.Fprintf(w, "Erreur de connexion : %v\n", err)
		return err
	}
	fmt.Fprintf(w, "Connexion réussie ! Nombre de lignes dans %s : %d\n", table, n)
	return nil
}

// runCheckNet reports every location and fails if any is unreachable.
func runCheckNet(ctx context.Context, f fetcher.Fetcher, locations []string, w io.Writer) error {
	var failed []string
	for _, loc := range locations {
		if loc == "" {
			continue
		}
		if !fetcher.IsRemote(loc) {
			if _, err := os.Stat(strings.TrimPrefix(loc, "file://")); err != nil {
				fmt.Fprintf(w, "KO  %s : %v\n", loc, err)
				failed = append(failed, loc)
				continue
			}
			fmt.Fprintf(w, "OK  %s (fichier local)\n", loc)
			continue
		}

		status, err := f.Probe(ctx, loc)
		switch {
		case err != nil:
			fmt.Fprintf(w, "KO  %s : %v\n", loc, err)
			failed = append(failed, loc)
		case status >= http.StatusBadRequest:
			fmt.Fprintf(w, "KO  %s : HTTP %d\n", loc, status)
			failed = append(failed, loc)
		default:
			fmt.Fprintf(w, "OK  %s (HTTP %d)\n", loc, status)
		}
	}
	if len(failed) > 0 {
		return eris.Errorf("check net: %d location(s) unreachable", len(failed))
	}
	return nil
}

func init() {
	checkCmd.AddCommand(checkDBCmd, checkNetCmd)
	rootCmd.AddCommand(checkCmd)
}

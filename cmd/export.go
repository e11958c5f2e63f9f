package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/fibre-map/internal/coverage"
)

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the coverage table to CSV",
	Long:  "Runs SELECT * on the configured coverage table and writes every column to a CSV file usable as the file coverage source.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportPath != "" {
			cfg.Coverage.ExportPath = exportPath
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		reader, err := newTableReader(cfg)
		if err != nil {
			return err
		}
		return runExport(cmd.Context(), reader, cfg.Coverage.ExportPath, cmd.OutOrStdout())
	},
}

func runExport(ctx context.Context, reader coverage.TableReader, path string, w io.Writer) error {
	n, err := coverage.Export(ctx, reader, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Données exportées : %d communes\n", n)
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "out", "", "CSV output path (default from config)")
	rootCmd.AddCommand(exportCmd)
}

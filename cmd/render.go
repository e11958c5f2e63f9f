package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/sells-group/fibre-map/internal/pipeline"
)

var renderOut string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Run one load and write the assembled map as JSON",
	Long:  "Fetches both sources, fuses and classifies them, writes the deck JSON to --out (\"-\" for stdout) and prints the coverage summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("render"); err != nil {
			return err
		}
		p, err := initPipeline(cfg)
		if err != nil {
			return err
		}
		return runRender(cmd.Context(), p, renderOut, cmd.OutOrStdout())
	},
}

type runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

func runRender(ctx context.Context, p runner, out string, w io.Writer) error {
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if out == "-" {
		if err := writeResult(w, res); err != nil {
			return err
		}
	} else {
		if dir := filepath.Dir(out); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return eris.Wrap(err, "render: create output directory")
			}
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "render: create output")
		}
		if err := writeResult(f, res); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "render: close output")
		}
	}

	m := res.Summary.Format(language.French)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Session\t%s\n", res.SessionID)
	fmt.Fprintf(tw, "Communes\t%d (%d avec données)\n", res.Summary.Total, res.Summary.Matched)
	fmt.Fprintf(tw, "Moyenne nationale\t%s\n", m.Mean)
	fmt.Fprintf(tw, "Communes 100%% fibrées\t%s\n", m.Full)
	fmt.Fprintf(tw, "Communes < 50%% fibrées\t%s\n", m.Below50)
	return tw.Flush()
}

func writeResult(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "render: encode deck")
	}
	return nil
}

func init() {
	renderCmd.Flags().StringVar(&renderOut, "out", "deck.json", "output file for the deck JSON, - for stdout")
	rootCmd.AddCommand(renderCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

func newScoreCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a valuation record (YAML or JSON) and print the result as JSON",
		Example: `  valuation-wizard score --file record.yaml
  echo '{"arr": 1000000, "qoqGrowthRate": 40}' | valuation-wizard score`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := readRecord(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), valuation.Compute(r))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Record file (default: stdin)")
	return cmd
}

// readRecord decodes a record from path, or from stdin when path is empty
// or "-". YAML is a superset of JSON, so both parse.
func readRecord(path string, stdin io.Reader) (valuation.Record, error) {
	var (
		blob []byte
		err  error
	)
	if path == "" || path == "-" {
		blob, err = io.ReadAll(stdin)
	} else {
		blob, err = os.ReadFile(path)
	}
	if err != nil {
		return valuation.Record{}, fmt.Errorf("read record: %w", err)
	}
	var r valuation.Record
	if err := yaml.Unmarshal(blob, &r); err != nil {
		return valuation.Record{}, fmt.Errorf("parse record: %w", err)
	}
	return r, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"undetected/internal/dataset"
	"undetected/internal/series"
	"undetected/pkg/domain"
)

// openInput opens path, or the command's stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func readRecords(cmd *cobra.Command, path string) ([]domain.Record, error) {
	in, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	records, err := dataset.ReadRecords(in)
	if err != nil {
		return nil, fmt.Errorf("read records %s: %w", path, err)
	}
	return records, nil
}

// loadSeries reads either detection records, reduced to the changed-E
// calendar, or a ready series. Exactly one of the paths must be set.
func loadSeries(cmd *cobra.Command, recordsPath, seriesPath string) (domain.Series, error) {
	switch {
	case recordsPath != "" && seriesPath != "":
		return domain.Series{}, errors.New("--records and --series are mutually exclusive")
	case recordsPath != "":
		records, err := readRecords(cmd, recordsPath)
		if err != nil {
			return domain.Series{}, err
		}
		return series.Reduce(records)
	case seriesPath != "":
		in, err := openInput(cmd, seriesPath)
		if err != nil {
			return domain.Series{}, err
		}
		defer in.Close()
		s, err := dataset.ReadSeries(in)
		if err != nil {
			return domain.Series{}, fmt.Errorf("read series %s: %w", seriesPath, err)
		}
		return s, nil
	default:
		return domain.Series{}, errors.New("one of --records or --series is required")
	}
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("records", "", "Detection records CSV (species,first,last); - for stdin")
	cmd.Flags().String("series", "", "Series CSV (year,S,E); - for stdin")
	cmd.Flags().StringP("out", "o", "", "Write the result table to this file instead of stdout")
}

// writeResult renders the run table to --out or stdout.
func writeResult(cmd *cobra.Command, t domain.Table) error {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return dataset.WriteTable(cmd.OutOrStdout(), t)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := dataset.WriteTable(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"undetected/internal/core"
)

func sweepUTCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-ut",
		Short: "Extinction rate as a function of the assumed final undetected count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recordsPath, _ := cmd.Flags().GetString("records")
			seriesPath, _ := cmd.Flags().GetString("series")
			uts, _ := cmd.Flags().GetIntSlice("uts")
			if len(uts) == 0 {
				return errors.New("--uts is required")
			}
			s, err := loadSeries(cmd, recordsPath, seriesPath)
			if err != nil {
				return err
			}
			cfg, err := a.cfg.Estimator()
			if err != nil {
				return err
			}
			run, err := a.svc.SweepBoundary(cmd.Context(), core.BoundarySweepRequest{Series: s, UTs: uts, Config: cfg})
			if err != nil {
				return fmt.Errorf("sweep U_T: %w", err)
			}
			if err := writeResult(cmd, run.Result); err != nil {
				return err
			}
			printRun(cmd.ErrOrStderr(), run)
			return nil
		},
	}
	addInputFlags(cmd)
	addEstimatorFlags(cmd)
	cmd.Flags().IntSlice("uts", nil, "U_T values to sweep, e.g. 0,10,20")
	return cmd
}

func sweepOmegaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-omega",
		Short: "Total species count under the Fisher model for each odds ratio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recordsPath, _ := cmd.Flags().GetString("records")
			seriesPath, _ := cmd.Flags().GetString("series")
			omegas, _ := cmd.Flags().GetFloat64Slice("omegas")
			if len(omegas) == 0 {
				return errors.New("--omegas is required")
			}
			s, err := loadSeries(cmd, recordsPath, seriesPath)
			if err != nil {
				return err
			}
			cfg, err := a.cfg.Estimator()
			if err != nil {
				return err
			}
			run, err := a.svc.SweepOmega(cmd.Context(), core.OmegaSweepRequest{Series: s, Omegas: omegas, Config: cfg})
			if err != nil {
				return fmt.Errorf("sweep omega: %w", err)
			}
			if err := writeResult(cmd, run.Result); err != nil {
				return err
			}
			printRun(cmd.ErrOrStderr(), run)
			return nil
		},
	}
	addInputFlags(cmd)
	addEstimatorFlags(cmd)
	cmd.Flags().Float64Slice("omegas", nil, "Odds ratios to sweep, e.g. 0.5,1,2")
	return cmd
}

func deletionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deletion",
		Short: "Extinction rate when random shares of the species list are removed",
		Long: `For every proportion, draws random subsets of the species list, treats the
extant species missing from a subset as undetected in the final year and
reports the band of the per-subset mean extinction rate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recordsPath, _ := cmd.Flags().GetString("records")
			if recordsPath == "" {
				return errors.New("--records is required")
			}
			proportions, _ := cmd.Flags().GetFloat64Slice("proportions")
			subsets, _ := cmd.Flags().GetInt("subsets")
			samples, _ := cmd.Flags().GetInt("samples-per-subset")
			finalYear, _ := cmd.Flags().GetInt("final-year")

			records, err := readRecords(cmd, recordsPath)
			if err != nil {
				return err
			}
			cfg, err := a.cfg.Estimator()
			if err != nil {
				return err
			}
			cfg.Replicates = samples
			run, err := a.svc.SpeciesDeletion(cmd.Context(), core.DeletionRequest{
				Records:     records,
				Proportions: proportions,
				Subsets:     subsets,
				FinalYear:   finalYear,
				Config:      cfg,
			})
			if err != nil {
				return fmt.Errorf("species deletion: %w", err)
			}
			if err := writeResult(cmd, run.Result); err != nil {
				return err
			}
			printRun(cmd.ErrOrStderr(), run)
			return nil
		},
	}
	cmd.Flags().String("records", "", "Detection records CSV (species,first,last); - for stdin")
	cmd.Flags().StringP("out", "o", "", "Write the result table to this file instead of stdout")
	addEstimatorFlags(cmd)
	cmd.Flags().Float64Slice("proportions", []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}, "Shares of the species list to keep")
	cmd.Flags().Int("subsets", 1000, "Random subsets per proportion")
	cmd.Flags().Int("samples-per-subset", 30, "Trajectories per subset")
	cmd.Flags().Int("final-year", 0, "Year whose last-seen species count as extant (default last record year)")
	return cmd
}

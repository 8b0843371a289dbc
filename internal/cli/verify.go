package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"undetected/internal/core"
	"undetected/internal/simulate"
)

func verifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check interval coverage on simulated populations",
		Long: `Simulates populations with a known initial undetected count, estimates it
from the detected part of each history and counts how often the interval at
each nominal percentile contains the truth. Without --scenario a bird-like
scenario of 133 timesteps is simulated. --collapse drops the timesteps at which
no detected species went extinct before inferring.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			simulations, _ := cmd.Flags().GetInt("simulations")
			samples, _ := cmd.Flags().GetInt("samples")
			percentiles, _ := cmd.Flags().GetFloat64Slice("percentiles")
			collapse, _ := cmd.Flags().GetBool("collapse")

			scenario := simulate.BirdsLike()
			if scenarioPath != "" {
				in, err := openInput(cmd, scenarioPath)
				if err != nil {
					return err
				}
				err = json.NewDecoder(in).Decode(&scenario)
				_ = in.Close()
				if err != nil {
					return fmt.Errorf("decode scenario %s: %w", scenarioPath, err)
				}
			}
			model, err := a.cfg.Model()
			if err != nil {
				return err
			}
			run, res, err := a.svc.Verify(cmd.Context(), core.CoverageRequest{Config: simulate.CoverageConfig{
				Scenario:    scenario,
				Simulations: simulations,
				Samples:     samples,
				Percentiles: percentiles,
				Collapse:    collapse,
				Seed:        a.cfg.Seed,
				Workers:     a.cfg.Workers,
				Model:       model,
			}})
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			if err := writeResult(cmd, run.Result); err != nil {
				return err
			}
			printRun(cmd.ErrOrStderr(), run)
			fmt.Fprintf(cmd.ErrOrStderr(), "  U_0 estimate mean %.4g (sd %.4g), mean error %.4g\n",
				res.MeanEstimate, res.StdEstimate, res.MeanError)
			if res.FloorViolations > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %d trajectories fell below the feasibility floor\n", res.FloorViolations)
			}
			return nil
		},
	}
	cmd.Flags().String("scenario", "", "Scenario JSON {u0,s0,survivors,detections}")
	cmd.Flags().Int("simulations", 100, "Simulated populations")
	cmd.Flags().Int("samples", 1000, "Trajectories per simulated population")
	cmd.Flags().Float64Slice("percentiles", simulate.DefaultPercentiles, "Nominal interval widths to check")
	cmd.Flags().Bool("collapse", false, "Keep only the timesteps at which the detected-extinct count changes")
	cmd.Flags().StringP("out", "o", "", "Write the coverage table to this file instead of stdout")
	cmd.Flags().Uint64("seed", 1, "Random seed")
	cmd.Flags().Int("workers", 0, "Parallel replicate workers (default GOMAXPROCS)")
	cmd.Flags().Float64("omega", 0, "Fisher odds ratio; zero selects the central model")
	return cmd
}

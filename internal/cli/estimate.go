package cli

import (
	"encoding/json"
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"undetected/internal/adapters/exports"
	"undetected/internal/core"
	"undetected/internal/estimator"
	"undetected/pkg/domain"
)

func estimateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate undetected extant and extinct counts per timestep",
		Long: `Samples trajectories of the undetected extant count and writes one row per
timestep with the mean and interval of U and X:

  year,S,E,U_mean,X_mean,U_lo,U_hi,X_lo,X_hi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recordsPath, _ := cmd.Flags().GetString("records")
			seriesPath, _ := cmd.Flags().GetString("series")
			keep, _ := cmd.Flags().GetBool("keep-ensemble")
			publish, _ := cmd.Flags().GetStringSlice("publish")

			s, err := loadSeries(cmd, recordsPath, seriesPath)
			if err != nil {
				return err
			}
			cfg, err := a.cfg.Estimator()
			if err != nil {
				return err
			}
			req := core.EstimateRequest{Series: s, Config: cfg, KeepEnsemble: keep}
			if len(publish) > 0 {
				return a.estimateAndPublish(cmd, req, publish)
			}

			run, sum, err := a.svc.Estimate(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("estimate: %w", err)
			}
			if err := writeResult(cmd, run.Result); err != nil {
				return err
			}
			printRun(cmd.ErrOrStderr(), run)
			printSummary(cmd.ErrOrStderr(), sum)
			return nil
		},
	}
	addInputFlags(cmd)
	addEstimatorFlags(cmd)
	cmd.Flags().Bool("keep-ensemble", false, "Store every sampled trajectory with the run")
	cmd.Flags().StringSlice("publish", nil, "Publish the result to the artifact store in these formats (csv,json)")
	return cmd
}

// estimateAndPublish runs the estimate as an export job so that the result
// is persisted and published in one audited step.
func (a *app) estimateAndPublish(cmd *cobra.Command, req core.EstimateRequest, names []string) error {
	formats := make([]exports.Format, 0, len(names))
	for _, name := range names {
		f, err := exports.ParseFormat(name)
		if err != nil {
			return err
		}
		formats = append(formats, f)
	}

	ctx := cmd.Context()
	worker := exports.NewWorker(a.blobs,
		exports.WithLogger(a.log),
		exports.WithAudit(exports.LogAuditor{Logger: a.log}),
		exports.WithQueueSize(1),
	)
	worker.Start()
	defer func() { _ = worker.Stop(ctx) }()

	job, err := worker.Enqueue(ctx, exports.Input{
		Kind:        domain.RunEstimate,
		Parameters:  map[string]any{"replicates": req.Config.Replicates, "u_t": req.Config.UT},
		Formats:     formats,
		RequestedBy: actor(),
		Task:        a.svc.EstimateTask(req),
	})
	if err != nil {
		return err
	}
	done, err := worker.Wait(ctx, job.ID)
	if err != nil {
		return err
	}
	if done.Status != exports.StatusSucceeded {
		return fmt.Errorf("estimate job %s %s: %s", done.ID, done.Status, done.Error)
	}

	run, ok, err := a.svc.GetRun(ctx, done.RunID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, done.RunID)
	}
	if err := writeResult(cmd, run.Result); err != nil {
		return err
	}
	printRun(cmd.ErrOrStderr(), run)
	var detail struct {
		Summary estimator.Summary `json:"summary"`
	}
	if err := json.Unmarshal(run.Detail, &detail); err == nil {
		printSummary(cmd.ErrOrStderr(), detail.Summary)
	}
	printArtifacts(cmd.ErrOrStderr(), done.Artifacts)
	return nil
}

func actor() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

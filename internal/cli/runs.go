package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"undetected/internal/adapters/exports"
	"undetected/pkg/domain"
)

func runsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect, publish and delete recorded runs",
	}
	cmd.AddCommand(runsListCmd(a), runsShowCmd(a), runsDeleteCmd(a), runsPublishCmd(a), runsArtifactsCmd(a))
	return cmd
}

func runsListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			runs, err := a.svc.ListRuns(cmd.Context(), domain.RunKind(kind))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found")
				return nil
			}
			fmt.Fprintf(out, "Found %d run(s):\n\n", len(runs))
			for _, run := range runs {
				fmt.Fprintf(out, "%-36s %-16s %s %4d rows\n",
					idColor.Sprint(run.ID), run.Kind, run.CreatedAt.Format("2006-01-02 15:04:05"), len(run.Result.Rows))
			}
			return nil
		},
	}
	cmd.Flags().String("kind", "", "Only list runs of this kind")
	return cmd
}

func runsShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print the result table of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.lookup(cmd, args[0])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if !asJSON {
				return writeResult(cmd, run.Result)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}
	cmd.Flags().Bool("json", false, "Print the whole run record as JSON")
	cmd.Flags().StringP("out", "o", "", "Write the result table to this file instead of stdout")
	return cmd
}

func runsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "delete [id]",
		Short:       "Delete a run and its published artifacts",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationBlob: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := a.svc.DeleteRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}
			if !removed {
				return fmt.Errorf("%w: %s", domain.ErrRunNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted run: %s\n", okMark, args[0])
			return nil
		},
	}
}

func runsPublishCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "publish [id]",
		Short:       "Render a run to the artifact store",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationBlob: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			names, _ := cmd.Flags().GetStringSlice("format")
			formats := make([]exports.Format, 0, len(names))
			for _, name := range names {
				f, err := exports.ParseFormat(name)
				if err != nil {
					return err
				}
				formats = append(formats, f)
			}
			artifacts, err := a.svc.Publish(cmd.Context(), args[0], formats...)
			if err != nil {
				return fmt.Errorf("failed to publish run: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Published run %s:\n", okMark, idColor.Sprint(args[0]))
			printArtifacts(out, artifacts)
			return nil
		},
	}
	cmd.Flags().StringSlice("format", []string{"csv", "json"}, "Artifact formats (csv,json)")
	return cmd
}

func runsArtifactsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "artifacts [id]",
		Short:       "List the published artifacts of a run",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationBlob: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.svc.Artifacts(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list artifacts: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No artifacts found")
				return nil
			}
			for _, info := range infos {
				fmt.Fprintf(out, "%-40s %-18s %8d\n", info.Key, info.ContentType, info.Size)
			}
			return nil
		},
	}
}

func (a *app) lookup(cmd *cobra.Command, id string) (domain.RunRecord, error) {
	run, ok, err := a.svc.GetRun(cmd.Context(), id)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("failed to get run: %w", err)
	}
	if !ok {
		return domain.RunRecord{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return run, nil
}

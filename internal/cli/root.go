// Package cli implements the undetected command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"undetected/internal/blob"
	"undetected/internal/config"
	"undetected/internal/core"
	"undetected/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// annotationBlob marks commands that always need the artifact store.
const annotationBlob = "undetected/blob"

// flagKeys binds command line flags to configuration keys.
var flagKeys = map[string]string{
	"replicates":    config.KeyReplicates,
	"percentile":    config.KeyPercentile,
	"ut":            config.KeyUT,
	"workers":       config.KeyWorkers,
	"seed":          config.KeySeed,
	"omega":         config.KeyOmega,
	"max-doublings": config.KeyMaxDoublings,
	"storage":       config.KeyStorageDriver,
	"sqlite-path":   config.KeySQLitePath,
	"postgres-dsn":  config.KeyPostgresDSN,
	"blob":          config.KeyBlobDriver,
	"blob-root":     config.KeyBlobFSRoot,
	"s3-bucket":     config.KeyBlobS3Bucket,
	"log-level":     config.KeyLogLevel,
	"log-format":    config.KeyLogFormat,
	"log-file":      config.KeyLogFile,
	"metrics-file":  config.KeyMetricsFile,
}

// app carries the per-invocation state shared by the commands.
type app struct {
	cfgFile string
	noColor bool

	cfg       config.Config
	log       *logrus.Logger
	logCloser io.Closer
	metrics   *core.Metrics
	svc       *core.Service
	blobs     blob.Store
}

// Execute runs the command tree with args and releases every resource it
// opened, whether or not the command succeeded.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := a.root()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func (a *app) root() *cobra.Command {
	root := &cobra.Command{
		Use:     "undetected",
		Short:   "Estimate undetected extinctions from detection records",
		Version: Version,
		Long: `undetected infers how many species went extinct before they were ever
detected. It samples trajectories of the undetected extant count backwards
from the final year with mid-P confidence bounds on a hypergeometric
detection model and summarises the ensemble per timestep.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Configuration file (default ./undetected.yaml)")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable coloured output")
	pf.String("storage", "", "Run store driver: memory|sqlite|postgres")
	pf.String("sqlite-path", "", "Sqlite run store file")
	pf.String("postgres-dsn", "", "Postgres connection string")
	pf.String("blob", "", "Artifact store driver: fs|s3|memory")
	pf.String("blob-root", "", "Artifact directory for the fs driver")
	pf.String("s3-bucket", "", "Artifact bucket for the s3 driver")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format: text|json")
	pf.String("log-file", "", "Write logs to a rotating file")
	pf.String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")

	root.AddCommand(
		estimateCmd(a),
		sweepUTCmd(a),
		sweepOmegaCmd(a),
		deletionCmd(a),
		verifyCmd(a),
		runsCmd(a),
	)
	return root
}

// addEstimatorFlags registers the sampler settings on cmd.
func addEstimatorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("replicates", 1000, "Trajectories per estimate")
	f.Float64("percentile", 95, "Central interval width in percent")
	f.Int("ut", 0, "Undetected extant count in the final year")
	f.Int("workers", 0, "Parallel replicate workers (default GOMAXPROCS)")
	f.Uint64("seed", 1, "Random seed")
	f.Float64("omega", 0, "Fisher odds ratio; zero selects the central model")
	f.Int("max-doublings", 0, "Bracket doublings before giving up (default 60)")
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.noColor {
		color.NoColor = true
	}

	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log, a.logCloser = logger, closer

	ctx := cmd.Context()
	runs, err := core.OpenRunStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	a.metrics = core.NewMetrics()
	opts := []core.Option{core.WithLogger(logger), core.WithMetrics(a.metrics)}
	if needsBlobs(cmd) {
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			_ = runs.Close()
			return fmt.Errorf("open artifact store: %w", err)
		}
		a.blobs = store
		opts = append(opts, core.WithBlobStore(store))
	}
	a.svc = core.NewService(runs, opts...)
	logger.WithFields(logrus.Fields{
		"command": cmd.Name(),
		"storage": cfg.Storage.Driver,
	}).Debug("command configured")
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func needsBlobs(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationBlob] == "true" {
		return true
	}
	formats, err := cmd.Flags().GetStringSlice("publish")
	return err == nil && len(formats) > 0
}

// close writes the metrics textfile and releases stores and log files.
func (a *app) close() error {
	var errs []error
	if a.metrics != nil && a.cfg.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}

// Package config loads estimator, storage and logging settings from flags,
// environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"undetected/internal/blob"
	"undetected/internal/core"
	"undetected/internal/estimator"
	"undetected/internal/hypergeom"
	"undetected/internal/logging"
)

// EnvPrefix prefixes every environment variable, e.g. UNDETECTED_REPLICATES.
const EnvPrefix = "UNDETECTED"

// Keys understood by Load. Nested keys map to environment variables with
// dots replaced by underscores.
const (
	KeyReplicates   = "replicates"
	KeyPercentile   = "percentile"
	KeyUT           = "u_t"
	KeyWorkers      = "workers"
	KeySeed         = "seed"
	KeyOmega        = "omega"
	KeyMaxDoublings = "max_doublings"

	KeyStorageDriver = "storage.driver"
	KeySQLitePath    = "storage.sqlite_path"
	KeyPostgresDSN   = "storage.postgres_dsn"

	KeyBlobDriver      = "blob.driver"
	KeyBlobFSRoot      = "blob.fs_root"
	KeyBlobS3Bucket    = "blob.s3.bucket"
	KeyBlobS3Region    = "blob.s3.region"
	KeyBlobS3Endpoint  = "blob.s3.endpoint"
	KeyBlobS3PathStyle = "blob.s3.path_style"

	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyLogFile       = "log.file"
	KeyLogMaxSizeMB  = "log.max_size_mb"
	KeyLogMaxBackups = "log.max_backups"
	KeyLogMaxAgeDays = "log.max_age_days"
	KeyLogCompress   = "log.compress"

	KeyMetricsFile = "metrics.file"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	Replicates   int
	Percentile   float64
	UT           int
	Workers      int
	Seed         uint64
	// Omega selects the Fisher noncentral model when positive.
	Omega        float64
	MaxDoublings int

	Storage core.StorageConfig
	Blob    blob.Config
	Log     logging.Config
	// MetricsFile receives a Prometheus textfile after each command.
	MetricsFile string
}

// New returns a viper instance with defaults and environment binding. When
// file is empty an undetected.{yaml,toml,json} in the working directory or
// /etc/undetected is used if present.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Short names kept for the storage factory variables.
	if err := v.BindEnv(KeySQLitePath, "UNDETECTED_STORAGE_SQLITE_PATH", "UNDETECTED_SQLITE_PATH"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(KeyPostgresDSN, "UNDETECTED_STORAGE_POSTGRES_DSN", "UNDETECTED_POSTGRES_DSN"); err != nil {
		return nil, err
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		return v, nil
	}
	v.SetConfigName("undetected")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/undetected")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	log := logging.Defaults()
	v.SetDefault(KeyReplicates, 1000)
	v.SetDefault(KeyPercentile, estimator.DefaultPercentile)
	v.SetDefault(KeyUT, 0)
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeySeed, 1)
	v.SetDefault(KeyOmega, 0)
	v.SetDefault(KeyMaxDoublings, 0)
	v.SetDefault(KeyStorageDriver, string(core.StorageSQLite))
	v.SetDefault(KeySQLitePath, "")
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyBlobDriver, string(blob.DriverFilesystem))
	v.SetDefault(KeyBlobFSRoot, "")
	v.SetDefault(KeyBlobS3Bucket, "")
	v.SetDefault(KeyBlobS3Region, "")
	v.SetDefault(KeyBlobS3Endpoint, "")
	v.SetDefault(KeyBlobS3PathStyle, false)
	v.SetDefault(KeyLogLevel, log.Level)
	v.SetDefault(KeyLogFormat, log.Format)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, log.MaxSizeMB)
	v.SetDefault(KeyLogMaxBackups, log.MaxBackups)
	v.SetDefault(KeyLogMaxAgeDays, log.MaxAgeDays)
	v.SetDefault(KeyLogCompress, false)
	v.SetDefault(KeyMetricsFile, "")
}

// Load resolves v into a Config.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Replicates:   v.GetInt(KeyReplicates),
		Percentile:   v.GetFloat64(KeyPercentile),
		UT:           v.GetInt(KeyUT),
		Workers:      v.GetInt(KeyWorkers),
		Seed:         v.GetUint64(KeySeed),
		Omega:        v.GetFloat64(KeyOmega),
		MaxDoublings: v.GetInt(KeyMaxDoublings),
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(v.GetString(KeyStorageDriver)),
			SQLitePath:  v.GetString(KeySQLitePath),
			PostgresDSN: v.GetString(KeyPostgresDSN),
		},
		Blob: blob.Config{
			Driver: blob.Driver(v.GetString(KeyBlobDriver)),
			FSRoot: v.GetString(KeyBlobFSRoot),
			S3: blob.S3Config{
				Bucket:    v.GetString(KeyBlobS3Bucket),
				Region:    v.GetString(KeyBlobS3Region),
				Endpoint:  v.GetString(KeyBlobS3Endpoint),
				PathStyle: v.GetBool(KeyBlobS3PathStyle),
			},
		},
		Log: logging.Config{
			Level:      v.GetString(KeyLogLevel),
			Format:     v.GetString(KeyLogFormat),
			File:       v.GetString(KeyLogFile),
			MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
			MaxBackups: v.GetInt(KeyLogMaxBackups),
			MaxAgeDays: v.GetInt(KeyLogMaxAgeDays),
			Compress:   v.GetBool(KeyLogCompress),
		},
		MetricsFile: v.GetString(KeyMetricsFile),
	}
	if cfg.UT < 0 {
		return Config{}, fmt.Errorf("config: %w: u_t=%d", estimator.ErrNegativeInput, cfg.UT)
	}
	if cfg.Omega < 0 {
		return Config{}, fmt.Errorf("config: %w: %v", hypergeom.ErrInvalidOmega, cfg.Omega)
	}
	return cfg, nil
}

// Model returns the hypergeometric model selected by Omega.
func (c Config) Model() (hypergeom.Model, error) {
	if c.Omega == 0 {
		return hypergeom.Central{}, nil
	}
	return hypergeom.New(hypergeom.KindFisher, c.Omega)
}

// Estimator returns the sampler configuration.
func (c Config) Estimator() (estimator.Config, error) {
	model, err := c.Model()
	if err != nil {
		return estimator.Config{}, err
	}
	cfg := estimator.Config{
		Replicates:   c.Replicates,
		Percentile:   c.Percentile,
		UT:           c.UT,
		Workers:      c.Workers,
		Seed:         c.Seed,
		Model:        model,
		MaxDoublings: c.MaxDoublings,
	}
	if err := cfg.Validate(); err != nil {
		return estimator.Config{}, err
	}
	return cfg, nil
}

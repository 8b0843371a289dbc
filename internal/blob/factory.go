package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"undetected/internal/infra/blob/fs"
	memorystore "undetected/internal/infra/blob/memory"
)

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads the backend selection from the environment:
//
//	UNDETECTED_BLOB_DRIVER: fs|s3|memory (default fs)
//	UNDETECTED_BLOB_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	UNDETECTED_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE for driver=s3
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv("UNDETECTED_BLOB_DRIVER")),
		FSRoot: os.Getenv("UNDETECTED_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:    os.Getenv("UNDETECTED_BLOB_S3_BUCKET"),
			Region:    os.Getenv("UNDETECTED_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("UNDETECTED_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("UNDETECTED_BLOB_S3_PATH_STYLE"), "true"),
		},
	}
}

// Open constructs the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// OpenFromEnv is Open(ctx, ConfigFromEnv()).
func OpenFromEnv(ctx context.Context) (Store, error) {
	return Open(ctx, ConfigFromEnv())
}

// NewFilesystem returns a filesystem-backed store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// Package blob exposes the artifact store used for rendered run results and
// selects a backend from configuration.
package blob

import (
	"undetected/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory

	ContentTypeCSV  = core.ContentTypeCSV
	ContentTypeJSON = core.ContentTypeJSON
)

var (
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
	// ErrNotFound indicates a missing key.
	ErrNotFound = core.ErrNotFound
	// ErrExists indicates a create-only write hit an existing key.
	ErrExists = core.ErrExists
)

// ArtifactKey returns the store key of a named artifact of a run.
func ArtifactKey(runID, name string) string { return core.ArtifactKey(runID, name) }

// RunPrefix returns the key prefix of all artifacts of a run.
func RunPrefix(runID string) string { return core.RunPrefix(runID) }

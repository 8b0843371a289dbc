package blob

import (
	"context"

	infraS3 "undetected/internal/infra/blob/s3"
)

// S3Config configures the S3 backend.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store over an in-process fake transport.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

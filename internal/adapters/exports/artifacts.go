package exports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"undetected/internal/blob"
	"undetected/internal/dataset"
	"undetected/pkg/domain"
)

// Format is an artifact rendering.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DefaultFormats are used when an input names none.
var DefaultFormats = []Format{FormatCSV, FormatJSON}

// Artifact is a stored rendering of a run result.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParseFormat accepts "csv" or "json".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("exports: unsupported format %q", s)
}

func normalizeFormats(in []Format) ([]Format, error) {
	if len(in) == 0 {
		return append([]Format(nil), DefaultFormats...), nil
	}
	out := make([]Format, 0, len(in))
	seen := make(map[Format]struct{}, len(in))
	for _, f := range in {
		if _, err := ParseFormat(string(f)); err != nil {
			return nil, err
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

func render(f Format, t domain.Table) ([]byte, string, error) {
	switch f {
	case FormatCSV:
		b, err := dataset.RenderCSV(t)
		return b, blob.ContentTypeCSV, err
	case FormatJSON:
		b, err := dataset.RenderJSON(t)
		return b, blob.ContentTypeJSON, err
	}
	return nil, "", fmt.Errorf("exports: unsupported format %q", f)
}

// Publish renders run.Result in each format and stores it under
// runs/<id>/result.<format>.
func Publish(ctx context.Context, store blob.Store, run domain.RunRecord, formats []Format) ([]Artifact, error) {
	if run.ID == "" {
		return nil, fmt.Errorf("exports: run id required")
	}
	formats, err := normalizeFormats(formats)
	if err != nil {
		return nil, err
	}
	artifacts := make([]Artifact, 0, len(formats))
	for _, f := range formats {
		payload, contentType, err := render(f, run.Result)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", f, err)
		}
		key := blob.ArtifactKey(run.ID, "result."+string(f))
		info, err := store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"run": run.ID, "kind": string(run.Kind)},
		})
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			Format:      f,
			ContentType: contentType,
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			URL:         info.URL,
			CreatedAt:   info.LastModified,
		})
	}
	return artifacts, nil
}

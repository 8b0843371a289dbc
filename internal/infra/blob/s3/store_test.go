package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"undetected/internal/blob/core"
)

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	if store.Driver() != core.DriverS3 || store.Bucket() != "mock-bucket" {
		t.Fatalf("unexpected store identity")
	}
	key := core.ArtifactKey("r1", "result.csv")
	info, err := store.Put(ctx, key, strings.NewReader("year,S,E\n1900,3,0\n"), core.PutOptions{ContentType: core.ContentTypeCSV})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != key || info.Size != 18 || info.ContentType != core.ContentTypeCSV {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, key, strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	_, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "year,S,E\n1900,3,0\n" {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := store.Put(ctx, core.ArtifactKey("r2", "result.json"), strings.NewReader(`{"a":1}`), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, core.RunPrefix("r1"))
	if err != nil || len(list) != 1 || list[0].Key != key {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}

	removed, err := store.Delete(ctx, key)
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.Delete(ctx, key)
	if err != nil || removed {
		t.Fatalf("expected missing on second delete: removed=%v err=%v", removed, err)
	}
	if _, _, err := store.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPresign(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	url, err := store.PresignURL(ctx, "runs/r1/result.csv", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "mock-bucket/runs/r1/result.csv") || !strings.Contains(url, "X-Amz-Expires=60") {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	body, ok := decodeAWSChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc\r\n\r\n"))
	if !ok || string(body) != "hello" {
		t.Fatalf("unexpected decode %q ok=%v", body, ok)
	}
	if _, ok := decodeAWSChunked([]byte("plain body")); ok {
		t.Fatalf("expected raw payload to pass through")
	}
}

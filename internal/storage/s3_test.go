package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/vidfriends/genbridge/internal/config"
)

func TestNewS3StorageRequiresBucket(t *testing.T) {
	if _, err := NewS3Storage(context.Background(), config.ArchiveConfig{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestNewS3StorageConfigures(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	s, err := NewS3Storage(context.Background(), config.ArchiveConfig{
		Bucket:        "results",
		Endpoint:      "http://localhost:9000",
		Region:        "us-east-1",
		PublicBaseURL: "https://cdn.example.com/",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.bucket != "results" || strings.HasSuffix(s.baseURL, "/") {
		t.Fatalf("unexpected storage %+v", s)
	}
	if _, err := s.Save(context.Background(), "/", strings.NewReader("{}")); err == nil {
		t.Fatal("expected error for empty key")
	}
}

package storage

import (
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNotFound(t *testing.T) {
	missing := fmt.Errorf("minio get object failed: %w", minio.ErrorResponse{Code: "NoSuchKey"})
	if !IsNotFound(missing) {
		t.Fatalf("expected wrapped NoSuchKey to be not found")
	}
	if IsNotFound(minio.ErrorResponse{Code: "AccessDenied"}) {
		t.Fatalf("access denied is not a missing object")
	}
	if IsNotFound(fmt.Errorf("dial tcp: refused")) {
		t.Fatalf("plain errors are not missing objects")
	}
}

func TestNewMinIOStorageValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  MinIOConfig
	}{
		{"no endpoint", MinIOConfig{AccessKey: "a", SecretKey: "b"}},
		{"no access key", MinIOConfig{Endpoint: "localhost:9000", SecretKey: "b"}},
		{"no secret key", MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMinIOStorage(tt.cfg); err == nil {
				t.Fatalf("expected config error")
			}
		})
	}
}

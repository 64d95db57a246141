package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"codelab/internal/common/storage"
	"codelab/internal/practice/catalog"
)

const pack1 = `exercises:
  - id: hello
    title: Hello
    difficulty: easy
    expectedOutput: "Hello"
  - id: sum
    title: Sum
    difficulty: medium
    expectedOutput: "Sum: 8"
`

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) GetObject(ctx context.Context, bucket, key string) (storage.ObjectReader, error) {
	return io.NopCloser(bytes.NewReader(m.objects[bucket+"/"+key])), nil
}

func (m *memStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStore) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, nil
}

func TestPackAndPublish(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "exercises.yaml")
	if err := os.WriteFile(in, []byte(pack1), 0o600); err != nil {
		t.Fatalf("write pack failed: %v", err)
	}
	if err := run(in, "", "", ""); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	loaded, err := catalog.LoadFile(in + ".zst")
	if err != nil {
		t.Fatalf("load packed catalog failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("unexpected exercise count %d", loaded.Len())
	}

	packed, count, err := pack(in)
	if err != nil || count != 2 {
		t.Fatalf("pack failed: %d, %v", count, err)
	}
	store := &memStore{objects: map[string][]byte{}}
	if err := publish(context.Background(), store, "codelab", "catalog/exercises.yaml.zst", packed); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	fromStore, err := catalog.LoadObject(context.Background(), store, "codelab", "catalog/exercises.yaml.zst")
	if err != nil {
		t.Fatalf("load object failed: %v", err)
	}
	if _, err := fromStore.Get("sum"); err != nil {
		t.Fatalf("uploaded catalog misses exercise: %v", err)
	}
}

func TestPackRejectsInvalid(t *testing.T) {
	in := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(in, []byte("exercises:\n  - id: x\n    title: X\n    expectedOutput: \"\"\n"), 0o600); err != nil {
		t.Fatalf("write pack failed: %v", err)
	}
	if _, _, err := pack(in); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := run(in, "", "", "key"); err == nil {
		t.Fatalf("expected error")
	}
}

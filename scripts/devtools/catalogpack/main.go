package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"codelab/internal/common/storage"
	"codelab/internal/practice/catalog"

	"gopkg.in/yaml.v3"
)

// uploadConfig is the subset of the server config needed for uploads.
type uploadConfig struct {
	MinIO storage.MinIOConfig `yaml:"minio"`
}

func main() {
	in := flag.String("in", "configs/exercises.yaml", "Exercise pack to read (.yaml or .yaml.zst)")
	out := flag.String("out", "", "Write the packed catalog here (defaults to <in>.zst)")
	configPath := flag.String("config", "", "Server config whose minio section is used for -upload")
	upload := flag.String("upload", "", "Object key to upload the packed catalog to")
	flag.Parse()

	if err := run(*in, *out, *configPath, *upload); err != nil {
		fmt.Fprintf(os.Stderr, "catalogpack: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out, configPath, upload string) error {
	packed, count, err := pack(in)
	if err != nil {
		return err
	}
	if out == "" && upload == "" {
		out = strings.TrimSuffix(in, ".zst") + ".zst"
	}
	if out != "" {
		if err := os.WriteFile(out, packed, 0o644); err != nil {
			return fmt.Errorf("write %s failed: %w", out, err)
		}
		fmt.Printf("packed %d exercises into %s (%d bytes)\n", count, out, len(packed))
	}
	if upload == "" {
		return nil
	}

	if configPath == "" {
		return fmt.Errorf("-config is required with -upload")
	}
	var cfg uploadConfig
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config failed: %w", err)
	}
	if cfg.MinIO.Bucket == "" {
		return fmt.Errorf("minio bucket is required")
	}
	store, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := publish(ctx, store, cfg.MinIO.Bucket, upload, packed); err != nil {
		return err
	}
	fmt.Printf("uploaded %d exercises to %s/%s\n", count, cfg.MinIO.Bucket, upload)
	return nil
}

// pack validates the pack at path and returns it zstd-compressed.
func pack(path string) ([]byte, int, error) {
	c, err := catalog.LoadFile(path)
	if err != nil {
		return nil, 0, err
	}
	exercises := c.List(catalog.Filter{})
	var buf bytes.Buffer
	if err := catalog.Encode(&buf, exercises, true); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(exercises), nil
}

func publish(ctx context.Context, store storage.ObjectStorage, bucket, key string, packed []byte) error {
	var r io.Reader = bytes.NewReader(packed)
	if err := store.PutObject(ctx, bucket, key, r, int64(len(packed)), "application/zstd"); err != nil {
		return fmt.Errorf("upload %s failed: %w", key, err)
	}
	return nil
}

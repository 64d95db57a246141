package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"codelab/internal/common/storage"
	appErr "codelab/pkg/errors"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

const (
	compressedSuffix = ".zst"
	maxPackBytes     = 16 << 20
)

type pack struct {
	Exercises []*Exercise `yaml:"exercises"`
}

// LoadFile reads a catalog pack from disk. Files ending in .zst are
// zstd-compressed YAML.
func LoadFile(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "open catalog %s failed", path)
	}
	defer file.Close()
	return Decode(file, strings.HasSuffix(path, compressedSuffix))
}

// LoadObject downloads a catalog pack from object storage.
func LoadObject(ctx context.Context, store storage.ObjectStorage, bucket, key string) (*Catalog, error) {
	if store == nil {
		return nil, appErr.New(appErr.CatalogLoadFailed).WithMessage("object storage is not configured")
	}
	obj, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "fetch catalog %s/%s failed", bucket, key)
	}
	defer obj.Close()
	return Decode(obj, strings.HasSuffix(key, compressedSuffix))
}

// Decode parses a catalog pack.
func Decode(r io.Reader, compressed bool) (*Catalog, error) {
	if compressed {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "create zstd reader failed")
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(io.LimitReader(r, maxPackBytes+1))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "read catalog failed")
	}
	if len(data) > maxPackBytes {
		return nil, appErr.Newf(appErr.CatalogInvalid, "catalog exceeds %d bytes", maxPackBytes)
	}

	var p pack
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return nil, appErr.Wrapf(err, appErr.CatalogInvalid, "decode catalog failed: %v", err)
	}
	return New(p.Exercises)
}

// Encode writes exercises as a catalog pack, zstd-compressed when compressed
// is set.
func Encode(w io.Writer, exercises []*Exercise, compressed bool) error {
	data, err := yaml.Marshal(pack{Exercises: exercises})
	if err != nil {
		return fmt.Errorf("encode catalog failed: %w", err)
	}
	if !compressed {
		_, err = w.Write(data)
		return err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer failed: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("compress catalog failed: %w", err)
	}
	return zw.Close()
}

package relay

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/matheus3301/chatsync/internal/syncerr"
)

// BlobStore keeps blobs as files under dir/<bucket>/<key>.
type BlobStore struct {
	dir string
}

func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &BlobStore{dir: dir}, nil
}

func (b *BlobStore) path(bucket, key string) (string, error) {
	for _, part := range []string{bucket, key} {
		if part == "" || strings.ContainsAny(part, `/\`) || !filepath.IsLocal(part) {
			return "", fmt.Errorf("invalid blob name %q: %w", part, syncerr.ErrUnsupported)
		}
	}
	return filepath.Join(b.dir, bucket, key), nil
}

// Put stores r atomically.
func (b *BlobStore) Put(bucket, key string, r io.Reader) error {
	dest, err := b.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	return os.Rename(tmp.Name(), dest)
}

// Open returns the blob for reading. A missing blob is syncerr.ErrNotFound.
func (b *BlobStore) Open(bucket, key string) (*os.File, error) {
	p, err := b.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, syncerr.ErrNotFound)
	}
	return f, err
}

package letterhead

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore publishes asset bytes at a public URL. The document registration
// for published files stays in the applier; this port only moves bytes.
type FileStore interface {
	Publish(ctx context.Context, localPath, publicURL string) error
}

// DiskFileStore copies assets under a public files root, mirroring the URL
// path below /files/.
type DiskFileStore struct {
	Root string
}

func (d *DiskFileStore) Publish(_ context.Context, localPath, publicURL string) error {
	rel := strings.TrimPrefix(publicURL, "/files/")
	if rel == publicURL {
		return fmt.Errorf("publish %s: public URL must start with /files/", publicURL)
	}
	target := filepath.Join(d.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("publish %s: %w", publicURL, err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("publish %s: %w", publicURL, err)
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("publish %s: %w", publicURL, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("publish %s: %w", publicURL, err)
	}
	return nil
}

// MemoryFileStore records publishes for tests.
type MemoryFileStore struct {
	mu        sync.Mutex
	Published map[string]string
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{Published: map[string]string{}}
}

func (m *MemoryFileStore) Publish(_ context.Context, localPath, publicURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published[publicURL] = localPath
	return nil
}

package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"taskgrid/internal/config"
)

// FileStorage defines the interface for work-upload attachment storage.
// This allows switching between S3 and local disk implementations.
type FileStorage interface {
	// Save stores the file content and returns the opaque storage key.
	Save(ctx context.Context, originalName string, reader io.Reader) (string, error)

	// Open retrieves a stored file by key, returning the content and
	// a content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// NewFileStorage builds the storage backend selected in configuration.
func NewFileStorage(cfg config.StorageConfig) (FileStorage, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Storage(cfg)
	case "local", "":
		return NewLocalStorage(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// storageKey generates a collision-free key that keeps the original
// extension so content types can be inferred on read.
func storageKey(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return uuid.New().String() + ext
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// LocalStorage stores files on the local filesystem.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the upload directory if needed.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Save writes the file under a generated key.
func (l *LocalStorage) Save(_ context.Context, originalName string, reader io.Reader) (string, error) {
	key := storageKey(originalName)
	path := filepath.Join(l.dir, key)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return key, nil
}

// Open reads a stored file back. Keys are opaque, so anything with a
// path separator is rejected before touching the filesystem.
func (l *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return nil, "", fmt.Errorf("invalid storage key %q", key)
	}
	f, err := os.Open(filepath.Join(l.dir, key))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file %s: %w", key, err)
	}
	return f, contentTypeForKey(key), nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements StorageClient on a local directory. It backs
// development setups where R2 is not configured; the directory is served
// statically under publicURL.
type LocalStorage struct {
	root      string
	publicURL string
}

// NewLocalStorage creates the root directory if needed.
func NewLocalStorage(root, publicURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStorage{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Root returns the directory holding stored objects.
func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.GetPublicURL(key), nil
}

func (s *LocalStorage) Remove(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		p, err := s.resolve(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *LocalStorage) GetPublicURL(key string) string {
	return fmt.Sprintf("%s/%s", s.publicURL, key)
}

func (s *LocalStorage) KeyFromURL(url string) (string, bool) {
	return trimBase(url, s.GetPublicURL(""))
}

func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makeasinger/motionvault/internal/client"
)

const defaultContentType = "video/mp4"

// ObjectKey builds a storage path scoped to userID with a time stamp and a
// random suffix, so two uploads of the same file never collide.
func ObjectKey(userID, fileName string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%d_%s_%s", userID, time.Now().UnixMilli(), suffix, sanitizeFileName(fileName))
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

// uploadLocalFile streams a file on disk into the object store under key.
func uploadLocalFile(ctx context.Context, objects client.StorageClient, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(localPath), err)
	}
	defer f.Close()

	if contentType == "" {
		contentType = defaultContentType
	}
	if _, err := objects.Upload(ctx, key, f, contentType); err != nil {
		return err
	}
	return nil
}

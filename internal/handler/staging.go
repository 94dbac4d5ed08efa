package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/media"
	"github.com/makeasinger/motionvault/internal/model"
)

// stager writes multipart parts to temp files so services can read them
// after the request body is gone.
type stager struct {
	tempDir     string
	maxFileSize int64
	prober      media.Prober
}

func newStager(tempDir string, maxFileSize int64, prober media.Prober) *stager {
	return &stager{tempDir: tempDir, maxFileSize: maxFileSize, prober: prober}
}

// stage saves the first file in part to disk. Videos are probed for their
// resolution when probe is set.
func (s *stager) stage(ctx context.Context, c *fiber.Ctx, form *multipart.Form, part string, probe bool) (model.StagedFile, error) {
	files := form.File[part]
	if len(files) == 0 {
		return model.StagedFile{}, model.Invalid(fmt.Sprintf("file part %q is missing", part))
	}
	fh := files[0]

	if s.maxFileSize > 0 && fh.Size > s.maxFileSize {
		return model.StagedFile{}, model.Invalid(fmt.Sprintf("%s exceeds the %s limit", fh.Filename, humanize.Bytes(uint64(s.maxFileSize))))
	}
	contentType := fh.Header.Get(fiber.HeaderContentType)
	if probe && contentType != "" && !strings.HasPrefix(contentType, "video/") {
		return model.StagedFile{}, model.Invalid(fmt.Sprintf("%s is not a video (%s)", fh.Filename, contentType))
	}

	tmp, err := os.CreateTemp(s.tempDir, "staged-*")
	if err != nil {
		return model.StagedFile{}, fmt.Errorf("stage %s: %w", fh.Filename, err)
	}
	tmp.Close()

	staged := model.StagedFile{
		LocalPath:   tmp.Name(),
		FileName:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
	}
	if err := c.SaveFile(fh, staged.LocalPath); err != nil {
		staged.Release()
		return model.StagedFile{}, fmt.Errorf("stage %s: %w", fh.Filename, err)
	}

	if probe {
		res, err := s.prober.Resolution(ctx, staged.LocalPath)
		if err != nil {
			staged.Release()
			return model.StagedFile{}, model.Invalid(fmt.Sprintf("%s could not be read as video: %v", fh.Filename, err))
		}
		staged.Resolution = res
	}
	return staged, nil
}

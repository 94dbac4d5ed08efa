package handler

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/media"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/session"
	"github.com/makeasinger/motionvault/pkg/response"
)

type UploadHandler struct {
	sessionHandler
	stager *stager
}

func NewUploadHandler(sessions *session.Manager, v *validator.Validate, prober media.Prober, tempDir string, maxFileSize int64) *UploadHandler {
	return &UploadHandler{
		sessionHandler: sessionHandler{sessions: sessions, validator: v},
		stager:         newStager(tempDir, maxFileSize, prober),
	}
}

// Ingest handles POST /api/uploads.
//
// The multipart body carries a "manifest" field holding a JSON list of
// batches; each batch names the parts that hold its source and result
// videos.
func (h *UploadHandler) Ingest(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Multipart form is required", nil)
	}
	raw := form.Value["manifest"]
	if len(raw) == 0 {
		return response.ValidationError(c, "manifest is required", nil)
	}

	var manifests []model.BatchManifest
	if err := json.Unmarshal([]byte(raw[0]), &manifests); err != nil {
		return response.ValidationError(c, "Invalid manifest", nil)
	}
	if len(manifests) == 0 {
		return response.ValidationError(c, "manifest has no batches", nil)
	}
	for i := range manifests {
		if err := h.validator.Struct(&manifests[i]); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
	}

	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	batches := make([]model.PerformanceBatch, 0, len(manifests))
	release := func() {
		for i := range batches {
			batches[i].Release()
		}
	}

	for _, m := range manifests {
		src, err := h.stager.stage(c.Context(), c, form, m.Source.File, true)
		if err != nil {
			release()
			return writeError(c, err)
		}
		batch := model.PerformanceBatch{
			Source: model.StagedSourceFile{
				StagedFile:       src,
				PerformanceActor: strings.TrimSpace(m.Source.PerformanceActor),
				MovementType:     strings.TrimSpace(m.Source.MovementType),
				TakeNumber:       m.Source.TakeNumber,
				Tags:             model.ParseTags(m.Source.Tags),
			},
		}
		for _, r := range m.Results {
			staged, err := h.stager.stage(c.Context(), c, form, r.File, true)
			if err != nil {
				batch.Release()
				release()
				return writeError(c, err)
			}
			batch.Results = append(batch.Results, model.StagedResultFile{
				StagedFile: staged,
				ActorName:  strings.TrimSpace(r.ActorName),
			})
		}
		batches = append(batches, batch)
	}

	result, err := sess.Uploads.Ingest(c.Context(), batches)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, result)
}

package handler

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/media"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/session"
	"github.com/makeasinger/motionvault/pkg/response"
)

type TaskHandler struct {
	sessionHandler
	stager *stager
}

func NewTaskHandler(sessions *session.Manager, v *validator.Validate, prober media.Prober, tempDir string, maxFileSize int64) *TaskHandler {
	return &TaskHandler{
		sessionHandler: sessionHandler{sessions: sessions, validator: v},
		stager:         newStager(tempDir, maxFileSize, prober),
	}
}

// Submit handles POST /api/tasks.
//
// Multipart fields: "metadata" (JSON initial metadata), "reference" (the
// driving performance video) and "character" (the character image or video).
func (h *TaskHandler) Submit(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Multipart form is required", nil)
	}
	raw := form.Value["metadata"]
	if len(raw) == 0 {
		return response.ValidationError(c, "metadata is required", nil)
	}
	var meta model.InitialMetadata
	if err := json.Unmarshal([]byte(raw[0]), &meta); err != nil {
		return response.ValidationError(c, "Invalid metadata", nil)
	}
	if err := h.validator.Struct(&meta); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	reference, err := h.stager.stage(c.Context(), c, form, "reference", false)
	if err != nil {
		return writeError(c, err)
	}
	character, err := h.stager.stage(c.Context(), c, form, "character", false)
	if err != nil {
		reference.Release()
		return writeError(c, err)
	}

	task, err := sess.Generations.Submit(c.Context(), model.GenerationRequest{
		Reference: reference,
		Character: character,
		Metadata:  meta,
	})
	if err != nil {
		return writeError(c, err)
	}
	return response.Accepted(c, task)
}

// Delete handles DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := sess.Engine.DeleteTask(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return response.NoContent(c)
}

// Promote handles POST /api/tasks/:id/promote
func (h *TaskHandler) Promote(c *fiber.Ctx) error {
	var req model.PromoteRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	asset, err := sess.Promotions.Promote(c.Context(), c.Params("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, asset)
}

// Poll handles POST /api/tasks/poll and runs one poll tick immediately.
func (h *TaskHandler) Poll(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	updated := sess.Poller.Tick(c.Context())
	return response.OK(c, model.PollResponse{Updated: updated})
}

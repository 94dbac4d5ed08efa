package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/session"
	"github.com/makeasinger/motionvault/pkg/response"
)

type CategoryHandler struct {
	sessionHandler
}

func NewCategoryHandler(sessions *session.Manager, v *validator.Validate) *CategoryHandler {
	return &CategoryHandler{sessionHandler{sessions: sessions, validator: v}}
}

// Create handles POST /api/categories
func (h *CategoryHandler) Create(c *fiber.Ctx) error {
	var req model.CreateCategoryRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	category, err := sess.Engine.AddCategory(c.Context(), req.Type, req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, category)
}

// Rename handles PATCH /api/categories/:id
func (h *CategoryHandler) Rename(c *fiber.Ctx) error {
	var req model.RenameCategoryRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	category, err := sess.Engine.RenameCategory(c.Context(), c.Params("id"), req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, category)
}

// Delete handles DELETE /api/categories/:id
func (h *CategoryHandler) Delete(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := sess.Engine.DeleteCategory(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return response.NoContent(c)
}

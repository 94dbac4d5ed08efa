package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/session"
	"github.com/makeasinger/motionvault/pkg/response"
)

type AssetHandler struct {
	sessionHandler
}

func NewAssetHandler(sessions *session.Manager, v *validator.Validate) *AssetHandler {
	return &AssetHandler{sessionHandler{sessions: sessions, validator: v}}
}

// Create handles POST /api/assets for objects that are already stored.
func (h *AssetHandler) Create(c *fiber.Ctx) error {
	var req model.CreateAssetsRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	assets := make([]model.Asset, len(req.Assets))
	for i, in := range req.Assets {
		assets[i] = in.Asset()
	}
	inserted, err := sess.Engine.AddAssets(c.Context(), assets)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, inserted)
}

// Update handles PATCH /api/assets/:id
func (h *AssetHandler) Update(c *fiber.Ctx) error {
	var patch model.AssetPatch
	if ok, err := h.parse(c, &patch); !ok {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	asset, err := sess.Engine.UpdateAsset(c.Context(), c.Params("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, asset)
}

// ToggleFavorite handles POST /api/assets/:id/favorite
func (h *AssetHandler) ToggleFavorite(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}

	id := c.Params("id")
	favorite, err := sess.Engine.ToggleFavorite(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, model.FavoriteResponse{ID: id, IsFavorite: favorite})
}

// Delete handles DELETE /api/assets/:id
func (h *AssetHandler) Delete(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := sess.Engine.DeleteAsset(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return response.NoContent(c)
}

// DeleteMany handles POST /api/assets/delete
func (h *AssetHandler) DeleteMany(c *fiber.Ctx) error {
	var req model.DeleteAssetsRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := sess.Engine.DeleteAssets(c.Context(), req.IDs); err != nil {
		return writeError(c, err)
	}
	return response.NoContent(c)
}

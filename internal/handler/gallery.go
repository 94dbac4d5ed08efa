package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/middleware"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/session"
	ws "github.com/makeasinger/motionvault/internal/websocket"
	"github.com/makeasinger/motionvault/pkg/response"
)

type GalleryHandler struct {
	sessionHandler
	hub *ws.Hub
}

func NewGalleryHandler(sessions *session.Manager, hub *ws.Hub, v *validator.Validate) *GalleryHandler {
	return &GalleryHandler{
		sessionHandler: sessionHandler{sessions: sessions, validator: v},
		hub:            hub,
	}
}

// Get handles GET /api/gallery and returns all three collections.
func (h *GalleryHandler) Get(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, sess.StateMessage())
}

// Reload handles POST /api/gallery/reload
func (h *GalleryHandler) Reload(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := sess.Engine.Reload(c.Context()); err != nil {
		return writeError(c, err)
	}
	return response.OK(c, sess.StateMessage())
}

// CloseSession handles DELETE /api/session. It stops the user's poller and
// drops the mirrored state.
func (h *GalleryHandler) CloseSession(c *fiber.Ctx) error {
	h.sessions.Close(middleware.GetUserID(c))
	return response.NoContent(c)
}

// Stream serves /ws/gallery. The socket receives the current state on
// connect and a fresh snapshot after every change.
func (h *GalleryHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userId").(string)
		sess, err := h.sessions.Get(context.Background(), userID)
		if err != nil {
			_ = conn.WriteJSON(model.WSErrorMessage{
				Type:  model.WSMessageTypeError,
				Error: model.WSError{Code: response.CodeServiceError, Message: err.Error()},
			})
			return
		}
		h.hub.HandleConnection(conn, userID, sess.StateMessage())
	})
}

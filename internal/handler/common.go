package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/client"
	"github.com/makeasinger/motionvault/internal/middleware"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/service"
	"github.com/makeasinger/motionvault/internal/session"
	"github.com/makeasinger/motionvault/pkg/response"
)

// sessionHandler resolves the caller's gallery session.
type sessionHandler struct {
	sessions  *session.Manager
	validator *validator.Validate
}

func (h *sessionHandler) session(c *fiber.Ctx) (*session.Session, error) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return nil, fiber.ErrUnauthorized
	}
	return h.sessions.Get(c.Context(), userID)
}

// parse decodes and validates a JSON body into req. When it reports false
// the error response has been written and its result is returned as err.
func (h *sessionHandler) parse(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return false, response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return true, nil
}

// writeError maps domain errors onto the error envelope.
func writeError(c *fiber.Ctx, err error) error {
	var validationErr *model.ValidationError
	var uploadErr *service.UploadError
	var apiErr *client.APIError

	switch {
	case errors.Is(err, fiber.ErrUnauthorized):
		return response.Unauthorized(c, "Missing user identity")
	case errors.As(err, &validationErr):
		return response.ValidationError(c, validationErr.Message, nil)
	case errors.Is(err, model.ErrNotFound):
		return response.NotFound(c, err.Error())
	case errors.As(err, &uploadErr):
		return response.UploadFailed(c, err.Error(), uploadFailures(uploadErr))
	case errors.As(err, &apiErr), errors.Is(err, client.ErrJobNotFound):
		return response.UpstreamError(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

func uploadFailures(err *service.UploadError) map[string]string {
	failures := make(map[string]string)
	for _, o := range err.Outcomes {
		if o.Err != nil {
			failures[o.FileName] = o.Err.Error()
		}
	}
	return failures
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Namespace()] = e.Tag()
		}
		return errs
	}
	return nil
}

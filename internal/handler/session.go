package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aiplaza/serving-client/internal/client"
	"github.com/aiplaza/serving-client/internal/model"
	"github.com/aiplaza/serving-client/internal/service"
	"github.com/aiplaza/serving-client/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

type SessionHandler struct {
	service   *service.SessionService
	validator *validator.Validate
}

func NewSessionHandler(svc *service.SessionService, v *validator.Validate) *SessionHandler {
	return &SessionHandler{
		service:   svc,
		validator: v,
	}
}

// Get handles GET /api/session
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	return response.OK(c, h.service.Snapshot())
}

// ResolveModel handles POST /api/session/model
func (h *SessionHandler) ResolveModel(c *fiber.Ctx) error {
	if err := h.service.ResolveModel(c.Context()); err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			return response.NotFound(c, err.Error())
		}
		return upstreamError(c, err)
	}
	return response.OK(c, h.service.Snapshot())
}

// SelectFile handles POST /api/session/file
func (h *SessionHandler) SelectFile(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	if err := h.service.SelectReader(file.Filename, f); err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, h.service.Snapshot())
}

// SelectObject handles POST /api/session/object
func (h *SessionHandler) SelectObject(c *fiber.Ctx) error {
	var req model.SelectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if err := h.service.SelectFile(c.Context(), req.Ref); err != nil {
		if errors.Is(err, service.ErrStorageNotConfigured) {
			return response.NotReady(c, err.Error())
		}
		return response.NotFound(c, err.Error())
	}

	return response.OK(c, h.service.Snapshot())
}

// Upload handles POST /api/session/upload
func (h *SessionHandler) Upload(c *fiber.Ctx) error {
	if err := h.service.Upload(c.Context()); err != nil {
		if errors.Is(err, service.ErrNoFile) || errors.Is(err, service.ErrUploadSuperseded) {
			return response.NotReady(c, err.Error())
		}
		return upstreamError(c, err)
	}
	return response.OK(c, h.service.Snapshot())
}

// Run handles POST /api/session/run
func (h *SessionHandler) Run(c *fiber.Ctx) error {
	if err := h.service.Submit(c.Context()); err != nil {
		if errors.Is(err, service.ErrNotReady) {
			return response.NotReady(c, err.Error())
		}
		return upstreamError(c, err)
	}
	return response.Accepted(c, h.service.Snapshot())
}

// Result handles GET /api/session/result
func (h *SessionHandler) Result(c *fiber.Ctx) error {
	result, err := h.service.Result(c.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoResult) {
			return response.NotFound(c, err.Error())
		}
		return upstreamError(c, err)
	}

	return response.OK(c, result)
}

// upstreamError maps inference server failures to 502
func upstreamError(c *fiber.Ctx, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return response.UpstreamError(c, err.Error(), map[string]interface{}{
			"status": apiErr.StatusCode,
			"body":   apiErr.Body,
		})
	}
	return response.UpstreamError(c, err.Error(), nil)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

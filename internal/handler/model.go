package handler

import (
	"context"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aiplaza/serving-client/internal/model"
	"github.com/aiplaza/serving-client/pkg/response"
)

// ModelRegistry is the part of the serving client that manages models
type ModelRegistry interface {
	ListModels(ctx context.Context) ([]model.Model, error)
	CreateModel(ctx context.Context, name, filename string, archive io.Reader) (*model.Model, error)
}

type ModelHandler struct {
	registry  ModelRegistry
	validator *validator.Validate
}

func NewModelHandler(registry ModelRegistry, v *validator.Validate) *ModelHandler {
	return &ModelHandler{
		registry:  registry,
		validator: v,
	}
}

// List handles GET /api/models
func (h *ModelHandler) List(c *fiber.Ctx) error {
	models, err := h.registry.ListModels(c.Context())
	if err != nil {
		return upstreamError(c, err)
	}
	return response.OK(c, models)
}

// Register handles POST /api/models?name=
func (h *ModelHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterModelRequest
	if err := c.QueryParser(&req); err != nil {
		return response.ValidationError(c, "Invalid query", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "Model archive is required", nil)
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	created, err := h.registry.CreateModel(c.Context(), req.Name, file.Filename, f)
	if err != nil {
		return upstreamError(c, err)
	}

	return response.Created(c, created)
}

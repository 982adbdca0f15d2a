package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-sheet-grader/internal/dto"
	"github.com/noah-isme/gema-sheet-grader/internal/service"
	"github.com/noah-isme/gema-sheet-grader/internal/utils"
)

// ResultStoreHandler serves the essay and identification result endpoints. Records are
// returned as bare JSON objects so the submission pipeline can read the created id.
type ResultStoreHandler struct {
	service service.ResultStoreService
	logger  zerolog.Logger
}

// NewResultStoreHandler constructs the handler.
func NewResultStoreHandler(service service.ResultStoreService, logger zerolog.Logger) *ResultStoreHandler {
	return &ResultStoreHandler{
		service: service,
		logger:  logger.With().Str("component", "result_store_handler").Logger(),
	}
}

// Register binds the result routes.
func (h *ResultStoreHandler) Register(router fiber.Router) {
	essays := router.Group("/essay-results")
	essays.Post("", h.createEssay)
	essays.Get("", h.listEssays)
	essays.Get("/:id", h.getEssay)

	identifications := router.Group("/identification-results")
	identifications.Post("", h.createIdentification)
	identifications.Get("", h.listIdentifications)
	identifications.Get("/:id", h.getIdentification)
}

func (h *ResultStoreHandler) createEssay(c *fiber.Ctx) error {
	var payload dto.EssayResultRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.CreateEssay(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *ResultStoreHandler) createIdentification(c *fiber.Ctx) error {
	var payload dto.IdentificationResultRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.CreateIdentification(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *ResultStoreHandler) getEssay(c *fiber.Ctx) error {
	result, err := h.service.GetEssay(requestContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(result)
}

func (h *ResultStoreHandler) getIdentification(c *fiber.Ctx) error {
	result, err := h.service.GetIdentification(requestContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(result)
}

func (h *ResultStoreHandler) listEssays(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	results, err := h.service.ListEssays(requestContext(c), c.Query("assessment_id"), limit)
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(results)
}

func (h *ResultStoreHandler) listIdentifications(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	results, err := h.service.ListIdentifications(requestContext(c), c.Query("assessment_id"), limit)
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(results)
}

func (h *ResultStoreHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrResultNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "result not found")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("result store request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

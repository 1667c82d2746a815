package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// ScoringConfigHandler manages per-question scoring configurations.
type ScoringConfigHandler struct {
	service service.ScoringConfigService
	logger  zerolog.Logger
}

// NewScoringConfigHandler constructs the handler.
func NewScoringConfigHandler(service service.ScoringConfigService, logger zerolog.Logger) *ScoringConfigHandler {
	return &ScoringConfigHandler{
		service: service,
		logger:  logger.With().Str("component", "scoring_config_handler").Logger(),
	}
}

// Register attaches the scoring configuration routes.
func (h *ScoringConfigHandler) Register(router fiber.Router) {
	router.Get("/questions/:id/scoring", h.get)
	router.Put("/questions/:id/scoring", h.save)
}

func (h *ScoringConfigHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	config, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load scoring configuration")
	}

	return utils.SendSuccess(c, "scoring configuration", config)
}

func (h *ScoringConfigHandler) save(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	var payload dto.ScoringConfigRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	config, err := h.service.Save(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to save scoring configuration")
	}

	return utils.SendSuccess(c, "scoring configuration saved", config)
}

package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

const livePingInterval = 30 * time.Second

// GradingHandler exposes auto grading, manual grading and score read endpoints.
type GradingHandler struct {
	service service.GradingService
	events  service.GradingEventStream
	logger  zerolog.Logger
}

// NewGradingHandler constructs the handler. events may be nil, which disables the live feed.
func NewGradingHandler(service service.GradingService, events service.GradingEventStream, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		events:  events,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading routes. bulk middleware guards the whole-submission grading route.
func (h *GradingHandler) Register(router fiber.Router, bulk ...fiber.Handler) {
	router.Post("/answers/:id/auto-grade", h.autoGradeAnswer)
	router.Post("/answers/:id/grade", h.manualGrade)
	router.Get("/answers/:id/history", h.history)

	router.Post("/submissions/:id/auto-grade", append(bulk, h.autoGradeSubmission)...)
	router.Post("/submissions/:id/recalculate", h.recalculate)
	router.Get("/submissions/:id/summary", h.summary)
	router.Get("/submissions/:id/interface", h.gradingInterface)
	if h.events != nil {
		router.Get("/submissions/:id/live", h.upgradeLive, websocket.New(h.live))
	}

	router.Post("/questions/:id/regrade", h.regradeQuestion)
}

func (h *GradingHandler) autoGradeAnswer(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid answer id")
	}

	response, err := h.service.AutoGradeAnswer(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to auto grade answer")
	}

	message := "answer graded"
	if response.RequiresManualGrading {
		message = "answer requires manual grading"
	}
	return utils.SendSuccess(c, message, response)
}

func (h *GradingHandler) manualGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid answer id")
	}

	var payload dto.ManualGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := activityActorFromContext(c)
	if actor.ID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "grader identity missing")
	}

	response, err := h.service.ManualGrade(requestContext(c), id, payload, actor)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to grade answer")
	}

	return utils.SendSuccess(c, "answer graded", response)
}

func (h *GradingHandler) history(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid answer id")
	}

	versions, err := h.service.History(requestContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load score history")
	}

	return utils.SendSuccess(c, "score history", versions)
}

func (h *GradingHandler) autoGradeSubmission(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	response, err := h.service.AutoGradeSubmission(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to auto grade submission")
	}

	return utils.SendSuccess(c, "submission auto graded", response)
}

func (h *GradingHandler) recalculate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	totals, err := h.service.Recalculate(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to recalculate submission")
	}

	return utils.SendSuccess(c, "submission recalculated", totals)
}

func (h *GradingHandler) summary(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	summary, err := h.service.ScoreSummary(requestContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load score summary")
	}

	return utils.SendSuccess(c, "score summary", summary)
}

func (h *GradingHandler) gradingInterface(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	view, err := h.service.GradingInterface(requestContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load grading interface")
	}

	return utils.SendSuccess(c, "grading interface", view)
}

func (h *GradingHandler) regradeQuestion(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	response, err := h.service.RegradeQuestion(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to regrade question")
	}

	return utils.SendSuccess(c, "question regraded", response)
}

func (h *GradingHandler) upgradeLive(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	c.Locals("submission_id", id)
	c.Locals("request_ctx", requestContext(c))
	return c.Next()
}

func (h *GradingHandler) live(conn *websocket.Conn) {
	submissionID, _ := conn.Locals("submission_id").(uint)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	events, unsubscribe := h.events.Subscribe(submissionID)
	defer unsubscribe()

	logger := h.logger.With().Uint("submission_id", submissionID).Logger()
	logger.Info().Msg("grading live feed connected")
	defer logger.Info().Msg("grading live feed disconnected")

	// The client never sends data; reading only detects a closed socket.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("failed to write grading event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/auth"
	"github.com/emberian/tulip/internal/commands"
	"github.com/emberian/tulip/internal/interactions"
	"github.com/emberian/tulip/internal/users"
)

// InteractionsHandler accepts user interactions for queued delivery and
// the bot-side response endpoint for asynchronous replies.
type InteractionsHandler struct {
	service     *interactions.Service
	userService *users.Service
	poster      interactions.ResponsePoster
	logger      *slog.Logger
}

// RespondRequest is the body for the bot response endpoint.
type RespondRequest struct {
	StreamID string                   `json:"stream_id,omitempty"`
	UserID   string                   `json:"user_id,omitempty"`
	Response interactions.BotResponse `json:"response"`
}

// NewInteractionsHandler creates an interactions handler.
func NewInteractionsHandler(log *slog.Logger, service *interactions.Service, userService *users.Service, poster interactions.ResponsePoster) *InteractionsHandler {
	return &InteractionsHandler{
		service:     service,
		userService: userService,
		poster:      poster,
		logger:      log.With(slog.String("handler", "interactions")),
	}
}

// Register mounts the interaction routes on the Echo instance.
func (h *InteractionsHandler) Register(e *echo.Echo) {
	e.POST("/json/bot_interactions", h.Submit)
	bot := e.Group("/api/v1/bots/me/interactions", auth.APIKeyMiddleware(h.userService))
	bot.POST("/:id/respond", h.Respond)
}

// Submit godoc
// @Summary Submit a command invocation or widget click to a bot
// @Description Validates the interaction against the bot's registration
// and enqueues it for ordered, at-least-once delivery.
// @Tags interactions
// @Param payload body interactions.SubmitRequest true "Interaction"
// @Success 200 {object} interactions.SubmitResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /json/bot_interactions [post].
func (h *InteractionsHandler) Submit(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	var req interactions.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.service.Submit(c.Request().Context(), user.ID, user.RealmID, req)
	if err != nil {
		switch {
		case errors.Is(err, interactions.ErrBotNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		case errors.Is(err, interactions.ErrUnknownCommand):
			return echo.NewHTTPError(http.StatusNotFound, "unknown command")
		case errors.Is(err, interactions.ErrUnknownType),
			errors.Is(err, interactions.ErrMissingWidgetID),
			errors.Is(err, commands.ErrInvalidArguments):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// Respond godoc
// @Summary Post a bot's asynchronous response to an interaction
// @Description Consumes the interaction ID. A second response to the same
// interaction is rejected with 409.
// @Tags interactions
// @Param payload body RespondRequest true "Response"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/bots/me/interactions/{id}/respond [post].
func (h *InteractionsHandler) Respond(c echo.Context) error {
	bot, err := RequireBot(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	interactionID := strings.TrimSpace(c.Param("id"))
	if interactionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "interaction id is required")
	}
	var req RespondRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.service.Consume(c.Request().Context(), interactionID, bot.ID); err != nil {
		switch {
		case errors.Is(err, interactions.ErrBadInteractionID):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, interactions.ErrInteractionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "interaction not found")
		case errors.Is(err, interactions.ErrAlreadyConsumed):
			return echo.NewHTTPError(http.StatusConflict, "interaction already consumed")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.poster.PostBotResponse(c.Request().Context(), bot.ID, req.StreamID, req.UserID, req.Response.Content, req.Response.Widget); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("bot responded",
		slog.String("interaction_id", interactionID),
		slog.String("bot_id", bot.ID))
	return c.JSON(http.StatusOK, map[string]string{"result": "success"})
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/auth"
	"github.com/emberian/tulip/internal/presence"
	"github.com/emberian/tulip/internal/users"
)

// PresenceHandler serves bot heartbeat reporting and presence lookup.
type PresenceHandler struct {
	service     *presence.Service
	userService *users.Service
	logger      *slog.Logger
}

// NewPresenceHandler creates a presence handler.
func NewPresenceHandler(log *slog.Logger, service *presence.Service, userService *users.Service) *PresenceHandler {
	return &PresenceHandler{
		service:     service,
		userService: userService,
		logger:      log.With(slog.String("handler", "presence")),
	}
}

// Register mounts the presence routes on the Echo instance.
func (h *PresenceHandler) Register(e *echo.Echo) {
	bot := e.Group("/api/v1/bots/me", auth.APIKeyMiddleware(h.userService))
	bot.POST("/presence", h.Heartbeat)
	e.GET("/json/bots/:id/presence", h.Get)
}

// Heartbeat godoc
// @Summary Report the calling bot's presence
// @Tags presence
// @Param payload body presence.HeartbeatRequest true "Status"
// @Success 200 {object} presence.Presence
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/bots/me/presence [post].
func (h *PresenceHandler) Heartbeat(c echo.Context) error {
	bot, err := RequireBot(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	var req presence.HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Heartbeat(c.Request().Context(), bot.ID, bot.RealmID, req.Status)
	if err != nil {
		if errors.Is(err, presence.ErrUnknownStatus) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// Get godoc
// @Summary Get a bot's presence
// @Tags presence
// @Success 200 {object} presence.Presence
// @Failure 401 {object} ErrorResponse
// @Router /json/bots/{id}/presence [get].
func (h *PresenceHandler) Get(c echo.Context) error {
	if _, err := RequireUser(c.Request().Context(), c, h.userService); err != nil {
		return err
	}
	botID := strings.TrimSpace(c.Param("id"))
	if botID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bot id is required")
	}
	p, err := h.service.Get(c.Request().Context(), botID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

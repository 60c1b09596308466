package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/messages"
	"github.com/emberian/tulip/internal/puppets"
	"github.com/emberian/tulip/internal/streams"
	"github.com/emberian/tulip/internal/users"
)

// MessagesHandler serves message sending and recent history.
type MessagesHandler struct {
	service     *messages.Service
	userService *users.Service
	logger      *slog.Logger
}

// NewMessagesHandler creates a messages handler.
func NewMessagesHandler(log *slog.Logger, service *messages.Service, userService *users.Service) *MessagesHandler {
	return &MessagesHandler{
		service:     service,
		userService: userService,
		logger:      log.With(slog.String("handler", "messages")),
	}
}

// Register mounts the message routes on the Echo instance.
func (h *MessagesHandler) Register(e *echo.Echo) {
	e.POST("/json/messages", h.Send)
	e.GET("/json/streams/:stream_id/messages", h.Recent)
}

// Send godoc
// @Summary Send a message to a stream
// @Description Supports persona and puppet identity overlays and whisper
// visibility restriction.
// @Tags messages
// @Param payload body messages.SendRequest true "Message"
// @Success 200 {object} messages.Message
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /json/messages [post].
func (h *MessagesHandler) Send(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	var req messages.SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, err := h.service.Send(c.Request().Context(), user.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, messages.ErrEmptyContent),
			errors.Is(err, messages.ErrBadRecipient),
			errors.Is(err, puppets.ErrWrongStream):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, messages.ErrNotMember):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, streams.ErrStreamNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "stream not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, msg)
}

// Recent godoc
// @Summary List recent messages in a stream
// @Description Whispers appear only to their sender and recipients.
// @Tags messages
// @Param limit query int false "Max messages (default 50)"
// @Success 200 {object} map[string][]messages.Message
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /json/streams/{stream_id}/messages [get].
func (h *MessagesHandler) Recent(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	streamID := strings.TrimSpace(c.Param("stream_id"))
	if streamID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "stream id is required")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	items, err := h.service.Recent(c.Request().Context(), streamID, user.ID, limit)
	if err != nil {
		if errors.Is(err, messages.ErrNotMember) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string][]messages.Message{"messages": items})
}

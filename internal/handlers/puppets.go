package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/puppets"
	"github.com/emberian/tulip/internal/streams"
	"github.com/emberian/tulip/internal/users"
)

// PuppetsHandler serves stream puppet listing, claiming, and visibility.
type PuppetsHandler struct {
	service       *puppets.Service
	userService   *users.Service
	streamService *streams.Service
	logger        *slog.Logger
}

// VisibilityRequest is the body for PATCH /json/puppets/{id}/visibility.
type VisibilityRequest struct {
	Mode        string `json:"mode"`
	WindowHours *int   `json:"window_hours,omitempty"`
}

// NewPuppetsHandler creates a puppets handler.
func NewPuppetsHandler(log *slog.Logger, service *puppets.Service, userService *users.Service, streamService *streams.Service) *PuppetsHandler {
	return &PuppetsHandler{
		service:       service,
		userService:   userService,
		streamService: streamService,
		logger:        log.With(slog.String("handler", "puppets")),
	}
}

// Register mounts the puppet routes on the Echo instance.
func (h *PuppetsHandler) Register(e *echo.Echo) {
	e.GET("/json/streams/:stream_id/puppets", h.List)
	group := e.Group("/json/puppets/:id")
	group.POST("/claim", h.Claim)
	group.POST("/unclaim", h.Unclaim)
	group.PATCH("/visibility", h.SetVisibility)
}

// List godoc
// @Summary List puppets registered in a stream
// @Tags puppets
// @Success 200 {object} puppets.ListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /json/streams/{stream_id}/puppets [get].
func (h *PuppetsHandler) List(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	streamID := strings.TrimSpace(c.Param("stream_id"))
	if streamID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "stream id is required")
	}
	member, err := h.streamService.IsMember(c.Request().Context(), streamID, user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !member {
		return echo.NewHTTPError(http.StatusForbidden, "user is not subscribed to the stream")
	}
	items, err := h.service.List(c.Request().Context(), streamID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, puppets.ListResponse{Puppets: items})
}

// Claim godoc
// @Summary Claim a puppet as a permanent handler
// @Tags puppets
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /json/puppets/{id}/claim [post].
func (h *PuppetsHandler) Claim(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Claim(c.Request().Context(), id, user.ID); err != nil {
		if errors.Is(err, puppets.ErrPuppetNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "puppet not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"result": "success"})
}

// Unclaim godoc
// @Summary Drop a claimed handler slot on a puppet
// @Tags puppets
// @Success 200 {object} map[string]any
// @Router /json/puppets/{id}/unclaim [post].
func (h *PuppetsHandler) Unclaim(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	removed, err := h.service.Unclaim(c.Request().Context(), id, user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"result": "success", "removed": removed})
}

// SetVisibility godoc
// @Summary Change a puppet's whisper visibility mode
// @Tags puppets
// @Param payload body VisibilityRequest true "Visibility"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /json/puppets/{id}/visibility [patch].
func (h *PuppetsHandler) SetVisibility(c echo.Context) error {
	if _, err := RequireUser(c.Request().Context(), c, h.userService); err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	var req VisibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetVisibility(c.Request().Context(), id, req.Mode, req.WindowHours); err != nil {
		switch {
		case errors.Is(err, puppets.ErrPuppetNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "puppet not found")
		case errors.Is(err, puppets.ErrInvalidVisibility):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"result": "success"})
}

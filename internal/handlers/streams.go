package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/streams"
	"github.com/emberian/tulip/internal/users"
)

// StreamsHandler serves stream creation, listing, and subscription.
type StreamsHandler struct {
	service     *streams.Service
	userService *users.Service
	logger      *slog.Logger
}

// CreateStreamRequest is the body for POST /json/streams.
type CreateStreamRequest struct {
	Name string `json:"name"`
}

// NewStreamsHandler creates a streams handler.
func NewStreamsHandler(log *slog.Logger, service *streams.Service, userService *users.Service) *StreamsHandler {
	return &StreamsHandler{
		service:     service,
		userService: userService,
		logger:      log.With(slog.String("handler", "streams")),
	}
}

// Register mounts the stream routes on the Echo instance.
func (h *StreamsHandler) Register(e *echo.Echo) {
	e.GET("/json/streams", h.List)
	e.POST("/json/streams", h.Create)
	e.POST("/json/streams/:stream_id/subscribe", h.Subscribe)
}

// List godoc
// @Summary List streams in the caller's realm
// @Tags streams
// @Success 200 {object} map[string][]streams.Stream
// @Failure 401 {object} ErrorResponse
// @Router /json/streams [get].
func (h *StreamsHandler) List(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	items, err := h.service.ListRealm(c.Request().Context(), user.RealmID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string][]streams.Stream{"streams": items})
}

// Create godoc
// @Summary Create a stream (or return the existing one) and subscribe to it
// @Tags streams
// @Param payload body CreateStreamRequest true "Stream"
// @Success 200 {object} streams.Stream
// @Failure 400 {object} ErrorResponse
// @Router /json/streams [post].
func (h *StreamsHandler) Create(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	var req CreateStreamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "stream name is required")
	}
	st, err := h.service.Ensure(c.Request().Context(), user.RealmID, req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.service.Subscribe(c.Request().Context(), st.ID, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

// Subscribe godoc
// @Summary Subscribe to a stream
// @Tags streams
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /json/streams/{stream_id}/subscribe [post].
func (h *StreamsHandler) Subscribe(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	streamID := strings.TrimSpace(c.Param("stream_id"))
	st, err := h.service.GetByID(c.Request().Context(), streamID)
	if err != nil {
		if errors.Is(err, streams.ErrStreamNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "stream not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if st.RealmID != user.RealmID {
		return echo.NewHTTPError(http.StatusNotFound, "stream not found")
	}
	if err := h.service.Subscribe(c.Request().Context(), st.ID, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"result": "success"})
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/events"
	"github.com/emberian/tulip/internal/users"
)

// BadEventQueueCode is the error code clients watch for to re-register
// after their queue was garbage collected.
const BadEventQueueCode = "BAD_EVENT_QUEUE_ID"

// EventsHandler serves event queue registration and long-polling.
type EventsHandler struct {
	registry    *events.Registry
	userService *users.Service
	pollTimeout time.Duration
	logger      *slog.Logger
}

// EventsResponse is the body for GET /json/events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}

// NewEventsHandler creates an events handler with the long-poll timeout.
func NewEventsHandler(log *slog.Logger, registry *events.Registry, userService *users.Service, pollTimeout time.Duration) *EventsHandler {
	return &EventsHandler{
		registry:    registry,
		userService: userService,
		pollTimeout: pollTimeout,
		logger:      log.With(slog.String("handler", "events")),
	}
}

// Register mounts the event queue routes on the Echo instance.
func (h *EventsHandler) Register(e *echo.Echo) {
	e.POST("/json/register", h.RegisterQueue)
	e.GET("/json/events", h.Poll)
	e.DELETE("/json/events", h.DeleteQueue)
}

// RegisterQueue godoc
// @Summary Register a new event queue
// @Description Returns queue_id and last_event_id=-1 for the first poll
// @Tags events
// @Success 200 {object} events.QueueInfo
// @Failure 401 {object} ErrorResponse
// @Router /json/register [post].
func (h *EventsHandler) RegisterQueue(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	info := h.registry.Register(user.ID, user.RealmID)
	return c.JSON(http.StatusOK, info)
}

// Poll godoc
// @Summary Long-poll an event queue
// @Description Blocks until events newer than last_event_id arrive or the
// poll times out. Acknowledged events are pruned; unacknowledged ones are
// redelivered on the next poll.
// @Tags events
// @Param queue_id query string true "Queue ID"
// @Param last_event_id query int true "Highest event ID already processed"
// @Success 200 {object} EventsResponse
// @Failure 400 {object} ErrorResponse
// @Router /json/events [get].
func (h *EventsHandler) Poll(c echo.Context) error {
	if _, err := RequireUser(c.Request().Context(), c, h.userService); err != nil {
		return err
	}
	queueID := strings.TrimSpace(c.QueryParam("queue_id"))
	if queueID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "queue_id is required")
	}
	lastEventID := int64(-1)
	if raw := c.QueryParam("last_event_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "last_event_id must be an integer")
		}
		lastEventID = parsed
	}

	evs, err := h.registry.Poll(c.Request().Context(), queueID, lastEventID, h.pollTimeout)
	if err != nil {
		if errors.Is(err, events.ErrBadEventQueue) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"result": "error",
				"code":   BadEventQueueCode,
				"msg":    "bad event queue id: " + queueID,
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(evs) == 0 {
		// Timed out with nothing pending. The heartbeat reuses the acked
		// id so acknowledging it never skips a real event.
		evs = []events.Event{{ID: lastEventID, Type: events.TypeHeartbeat}}
	}
	return c.JSON(http.StatusOK, EventsResponse{Events: evs})
}

// DeleteQueue godoc
// @Summary Delete an event queue
// @Tags events
// @Param queue_id query string true "Queue ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /json/events [delete].
func (h *EventsHandler) DeleteQueue(c echo.Context) error {
	if _, err := RequireUser(c.Request().Context(), c, h.userService); err != nil {
		return err
	}
	queueID := strings.TrimSpace(c.QueryParam("queue_id"))
	if queueID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "queue_id is required")
	}
	if !h.registry.Delete(queueID) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"result": "error",
			"code":   BadEventQueueCode,
			"msg":    "bad event queue id: " + queueID,
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"result": "success"})
}

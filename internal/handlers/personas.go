package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/personas"
	"github.com/emberian/tulip/internal/users"
)

// PersonasHandler serves persona CRUD under /json/users/me/personas and
// the realm-wide listing used for typeahead.
type PersonasHandler struct {
	service     *personas.Service
	userService *users.Service
	logger      *slog.Logger
}

// NewPersonasHandler creates a personas handler.
func NewPersonasHandler(log *slog.Logger, service *personas.Service, userService *users.Service) *PersonasHandler {
	return &PersonasHandler{
		service:     service,
		userService: userService,
		logger:      log.With(slog.String("handler", "personas")),
	}
}

// Register mounts the persona routes on the Echo instance.
func (h *PersonasHandler) Register(e *echo.Echo) {
	group := e.Group("/json/users/me/personas")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
	group.PATCH("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	e.GET("/json/realm/personas", h.ListRealm)
}

// List godoc
// @Summary List my personas
// @Tags personas
// @Success 200 {object} personas.ListResponse
// @Failure 401 {object} ErrorResponse
// @Router /json/users/me/personas [get].
func (h *PersonasHandler) List(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, personas.ListResponse{Personas: items})
}

// Create godoc
// @Summary Create a persona
// @Tags personas
// @Param payload body personas.CreateRequest true "Persona"
// @Success 200 {object} personas.Persona
// @Failure 400 {object} ErrorResponse
// @Router /json/users/me/personas [post].
func (h *PersonasHandler) Create(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	var req personas.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Create(c.Request().Context(), user.ID, req)
	if err != nil {
		if errors.Is(err, personas.ErrDuplicateName) ||
			errors.Is(err, personas.ErrPersonaLimit) ||
			errors.Is(err, personas.ErrInvalidPersona) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// Get godoc
// @Summary Get one of my personas
// @Tags personas
// @Success 200 {object} personas.Persona
// @Failure 404 {object} ErrorResponse
// @Router /json/users/me/personas/{id} [get].
func (h *PersonasHandler) Get(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	p, err := h.service.GetByID(c.Request().Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, personas.ErrPersonaNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "persona not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// Update godoc
// @Summary Update a persona
// @Tags personas
// @Param payload body personas.UpdateRequest true "Fields to change"
// @Success 200 {object} personas.Persona
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /json/users/me/personas/{id} [patch].
func (h *PersonasHandler) Update(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	var req personas.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Update(c.Request().Context(), id, user.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, personas.ErrPersonaNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "persona not found")
		case errors.Is(err, personas.ErrDuplicateName), errors.Is(err, personas.ErrInvalidPersona):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// Delete godoc
// @Summary Deactivate a persona
// @Tags personas
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /json/users/me/personas/{id} [delete].
func (h *PersonasHandler) Delete(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(c.Request().Context(), id, user.ID); err != nil {
		if errors.Is(err, personas.ErrPersonaNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "persona not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"result": "success"})
}

// ListRealm godoc
// @Summary List all active personas in the realm
// @Tags personas
// @Success 200 {object} map[string][]personas.RealmPersona
// @Router /json/realm/personas [get].
func (h *PersonasHandler) ListRealm(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	items, err := h.service.ListRealm(c.Request().Context(), user.RealmID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string][]personas.RealmPersona{"personas": items})
}

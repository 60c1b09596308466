package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/auth"
	"github.com/emberian/tulip/internal/commands"
	"github.com/emberian/tulip/internal/users"
)

// CommandsHandler serves slash command registration and discovery. Bots
// manage their own commands through the API-key endpoints under
// /api/v1/bots/me/commands (or the JWT /json/bot_commands routes when a
// bot holds a session token); realm users browse and autocomplete through
// the /json routes.
type CommandsHandler struct {
	service     *commands.Service
	userService *users.Service
	logger      *slog.Logger
}

// NewCommandsHandler creates a commands handler.
func NewCommandsHandler(log *slog.Logger, service *commands.Service, userService *users.Service) *CommandsHandler {
	return &CommandsHandler{
		service:     service,
		userService: userService,
		logger:      log.With(slog.String("handler", "commands")),
	}
}

// Register mounts the command routes on the Echo instance.
func (h *CommandsHandler) Register(e *echo.Echo) {
	e.GET("/json/bot_commands", h.ListRealm)
	e.POST("/json/bot_commands", h.RegisterCommand)
	e.DELETE("/json/bot_commands/:name", h.Delete)
	e.GET("/json/bot_commands/:bot_id/autocomplete", h.Autocomplete)

	bot := e.Group("/api/v1/bots/me/commands", auth.APIKeyMiddleware(h.userService))
	bot.GET("", h.ListMine)
	bot.POST("", h.RegisterCommand)
	bot.DELETE("/:name", h.Delete)
}

// ListRealm godoc
// @Summary List all registered commands in the realm
// @Tags commands
// @Success 200 {object} commands.ListResponse
// @Failure 401 {object} ErrorResponse
// @Router /json/bot_commands [get].
func (h *CommandsHandler) ListRealm(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	items, err := h.service.ListRealm(c.Request().Context(), user.RealmID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, commands.ListResponse{Commands: items})
}

// Autocomplete godoc
// @Summary Autocomplete a bot's commands by prefix
// @Tags commands
// @Param q query string false "Name prefix"
// @Success 200 {object} commands.ListResponse
// @Router /json/bot_commands/{bot_id}/autocomplete [get].
func (h *CommandsHandler) Autocomplete(c echo.Context) error {
	user, err := RequireUser(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	botID := strings.TrimSpace(c.Param("bot_id"))
	if botID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bot id is required")
	}
	prefix := commands.NormalizeName(c.QueryParam("q"))
	items, err := h.service.Autocomplete(c.Request().Context(), botID, user.RealmID, prefix)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, commands.ListResponse{Commands: items})
}

// ListMine godoc
// @Summary List the calling bot's commands
// @Tags commands
// @Success 200 {object} commands.ListResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/bots/me/commands [get].
func (h *CommandsHandler) ListMine(c echo.Context) error {
	bot, err := RequireBot(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	items, err := h.service.ListBot(c.Request().Context(), bot.ID, bot.RealmID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, commands.ListResponse{Commands: items})
}

// RegisterCommand godoc
// @Summary Register or update a slash command
// @Description Upserts by name and announces the change to the realm
// @Tags commands
// @Param payload body commands.RegisterRequest true "Command"
// @Success 200 {object} commands.Command
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/bots/me/commands [post].
func (h *CommandsHandler) RegisterCommand(c echo.Context) error {
	bot, err := RequireBot(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	var req commands.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cmd, err := h.service.Register(c.Request().Context(), bot.ID, bot.RealmID, req)
	if err != nil {
		if errors.Is(err, commands.ErrInvalidCommand) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cmd)
}

// Delete godoc
// @Summary Delete one of the calling bot's commands
// @Tags commands
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/bots/me/commands/{name} [delete].
func (h *CommandsHandler) Delete(c echo.Context) error {
	bot, err := RequireBot(c.Request().Context(), c, h.userService)
	if err != nil {
		return err
	}
	name := commands.NormalizeName(c.Param("name"))
	if err := h.service.Delete(c.Request().Context(), bot.ID, bot.RealmID, name); err != nil {
		if errors.Is(err, commands.ErrCommandNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "command not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"result": "success"})
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/agents"
)

// AgentsHandler serves the open agent self-registration and claim
// verification endpoints. Both are public: registration issues the
// credentials, claiming proves a human owns the agent.
type AgentsHandler struct {
	service *agents.Service
	logger  *slog.Logger
}

// NewAgentsHandler creates an agents handler.
func NewAgentsHandler(log *slog.Logger, service *agents.Service) *AgentsHandler {
	return &AgentsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "agents")),
	}
}

// Register mounts the agent routes on the Echo instance.
func (h *AgentsHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/register_agent", h.RegisterAgent)
	e.POST("/api/v1/claim_agent", h.ClaimAgent)
}

// RegisterAgent godoc
// @Summary Self-register an AI agent
// @Description Creates a bot account and returns its API key plus the
// claim URL and verification code for human verification.
// @Tags agents
// @Param payload body agents.RegisterRequest true "Registration"
// @Success 200 {object} agents.RegisterResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/register_agent [post].
func (h *AgentsHandler) RegisterAgent(c echo.Context) error {
	var req agents.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.service.Register(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, agents.ErrRegistrationDisabled):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, agents.ErrMissingAgentName), errors.Is(err, agents.ErrInvalidAgentName):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// ClaimAgent godoc
// @Summary Verify human ownership of a registered agent
// @Description Checks the verification code in the linked tweet, or the
// moltbook bypass, and marks the claim consumed.
// @Tags agents
// @Param payload body agents.ClaimRequest true "Claim"
// @Success 200 {object} agents.ClaimResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/claim_agent [post].
func (h *AgentsHandler) ClaimAgent(c echo.Context) error {
	var req agents.ClaimRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.service.Claim(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, agents.ErrInvalidClaimToken):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, agents.ErrAlreadyClaimed),
			errors.Is(err, agents.ErrInvalidTweetURL),
			errors.Is(err, agents.ErrTweetUnavailable),
			errors.Is(err, agents.ErrCodeNotInTweet):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

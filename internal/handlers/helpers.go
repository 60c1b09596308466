// Package handlers provides HTTP API handlers for the Tulip chat server.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emberian/tulip/internal/auth"
	"github.com/emberian/tulip/internal/users"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// RequireUser resolves the authenticated user from the request context.
// Works for both JWT sessions and API-key bots since both middlewares
// store the user ID the same way.
func RequireUser(ctx context.Context, c echo.Context, userService *users.Service) (users.User, error) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return users.User{}, err
	}
	user, err := userService.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return users.User{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
		}
		return users.User{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return user, nil
}

// RequireBot is RequireUser plus a check that the caller is a bot account.
func RequireBot(ctx context.Context, c echo.Context, userService *users.Service) (users.User, error) {
	user, err := RequireUser(ctx, c, userService)
	if err != nil {
		return users.User{}, err
	}
	if !user.IsBot {
		return users.User{}, echo.NewHTTPError(http.StatusForbidden, "bot account required")
	}
	return user, nil
}

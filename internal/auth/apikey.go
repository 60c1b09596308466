package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// APIKeyResolver resolves an API key to a user ID, or an error when the key
// is unknown or the account is deactivated.
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, apiKey string) (string, error)
}

// APIKeyMiddleware authenticates bot requests carrying `Authorization: Bearer <api_key>`
// and stores the resolved bot user ID in the Echo context.
func APIKeyMiddleware(resolver APIKeyResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if apiKey == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
			}
			userID, err := resolver.ResolveAPIKey(c.Request().Context(), apiKey)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}
			SetUserID(c, userID)
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Package auth provides JWT issuance and Echo middleware for request
// authentication, plus API-key authentication for bot endpoints.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	contextUserIDKey = "auth_user_id"
	contextRoleKey   = "auth_role"
)

// Claims are the JWT claims issued by the login endpoint.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a JWT for the given user, returning the token and its expiry.
func GenerateToken(userID, secret string, expiresIn time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(expiresIn)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// JWTMiddleware validates bearer JWTs on every request not excluded by skipper
// and stores the authenticated user ID in the Echo context.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		Skipper:    skipper,
		SigningKey: []byte(secret),
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return new(Claims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return
			}
			c.Set(contextUserIDKey, claims.UserID)
			c.Set(contextRoleKey, claims.Role)
		},
	})
}

// UserIDFromContext returns the authenticated user ID stored by the auth middleware.
func UserIDFromContext(c echo.Context) (string, error) {
	userID, ok := c.Get(contextUserIDKey).(string)
	if !ok || strings.TrimSpace(userID) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return userID, nil
}

// SetUserID stores the authenticated user ID in the Echo context.
// Used by the API-key middleware and by handler tests.
func SetUserID(c echo.Context, userID string) {
	c.Set(contextUserIDKey, userID)
}

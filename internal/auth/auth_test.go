package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestGenerateTokenAndMiddlewareRoundTrip(t *testing.T) {
	const secret = "test-secret"
	token, expiresAt, err := GenerateToken("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if time.Until(expiresAt) < 55*time.Minute {
		t.Fatalf("expiry too soon: %v", expiresAt)
	}

	e := echo.New()
	e.Use(JWTMiddleware(secret, nil))
	e.GET("/whoami", func(c echo.Context) error {
		userID, err := UserIDFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, userID)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "user-1" {
		t.Fatalf("expected user-1, got %q", rec.Body.String())
	}
}

func TestJWTMiddlewareRejectsBadToken(t *testing.T) {
	e := echo.New()
	e.Use(JWTMiddleware("secret-a", nil))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	token, _, err := GenerateToken("user-1", "secret-b", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong signing key, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := bearerToken(tc.in); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

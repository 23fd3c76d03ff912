package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/medipay/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestApp(t *testing.T) (*fiber.App, services.TokenService) {
	t.Helper()
	tokens, err := services.NewTokenService("telemed-identity", "telemed-api", false, "", "", testSecret)
	require.NoError(t, err)

	auth := NewAuthMiddleware(tokens)
	app := fiber.New()
	app.Get("/me", auth.Authenticate(), func(c fiber.Ctx) error {
		userID, ok := GetUserIDFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		claims, ok := GetTokenClaimsFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(userID.String() + "|" + claims.Role)
	})
	app.Get("/admin", auth.AdminAuthenticate(), func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, tokens
}

func get(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthenticate(t *testing.T) {
	app, tokens := newTestApp(t)
	userID := uuid.New()

	token, err := tokens.GenerateAccessToken(userID, services.RolePatient, time.Hour)
	require.NoError(t, err)

	resp := get(t, app, "/me", token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", "").StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", "not-a-jwt").StatusCode)

	expired, err := tokens.GenerateAccessToken(userID, services.RolePatient, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", expired).StatusCode)
}

func TestAdminAuthenticate(t *testing.T) {
	app, tokens := newTestApp(t)

	patient, err := tokens.GenerateAccessToken(uuid.New(), services.RolePatient, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", patient).StatusCode)

	admin, err := tokens.GenerateAccessToken(uuid.New(), services.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, get(t, app, "/admin", admin).StatusCode)

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/admin", "").StatusCode)
}

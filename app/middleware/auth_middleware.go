// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// AuthMiddleware validates identity tokens for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the bearer token and stores the caller on the request
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		claims, err := m.claims(c)
		if err != nil {
			return unauthorized(c, err)
		}

		storeCaller(c, claims)
		return c.Next()
	}
}

// AdminAuthenticate is Authenticate restricted to the admin role
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		claims, err := m.claims(c)
		if err != nil {
			return unauthorized(c, err)
		}
		if !claims.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Admin role required",
				Error:   dto.ErrorDetail{Code: "ADMIN_ROLE_REQUIRED"},
			})
		}

		storeCaller(c, claims)
		return c.Next()
	}
}

var (
	errMissingHeader = errors.New("authorization header is required")
	errBadFormat     = errors.New("invalid authorization header format")
	errMissingToken  = errors.New("access token is required")
)

func (m *AuthMiddleware) claims(c fiber.Ctx) (*services.TokenClaims, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, errMissingHeader
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errBadFormat
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return nil, errMissingToken
	}
	return m.tokenService.ValidateAccessToken(token)
}

func unauthorized(c fiber.Ctx, err error) error {
	var code, message string
	switch {
	case errors.Is(err, errMissingHeader):
		code, message = "MISSING_AUTHORIZATION_HEADER", "Authorization header is required"
	case errors.Is(err, errBadFormat):
		code, message = "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'"
	case errors.Is(err, errMissingToken):
		code, message = "MISSING_ACCESS_TOKEN", "Access token is required"
	case errors.Is(err, services.ErrTokenExpired):
		code, message = "TOKEN_EXPIRED", "Access token has expired"
	case errors.Is(err, services.ErrTokenInvalid):
		code, message = "TOKEN_INVALID", "Invalid access token"
	default:
		code, message = "TOKEN_VALIDATION_FAILED", "Token validation failed"
	}

	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

func storeCaller(c fiber.Ctx, claims *services.TokenClaims) {
	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	c.Locals("token_id", claims.TokenID)
	c.Locals("token_claims", claims)

	if requestID := c.Get(utils.RequestIDKey); requestID != "" {
		c.Locals("request_id", requestID)
	}
}

// GetUserIDFromContext extracts the authenticated user id from the request context
func GetUserIDFromContext(c fiber.Ctx) (uuid.UUID, bool) {
	userID, ok := c.Locals("user_id").(uuid.UUID)
	return userID, ok
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals("token_claims").(*services.TokenClaims)
	return claims, ok
}

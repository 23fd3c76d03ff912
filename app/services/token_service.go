package services

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/medipay/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Caller roles carried in access tokens
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// TokenService validates access tokens minted by the identity service. GenerateAccessToken
// exists for tooling and tests; it needs the private key in RSA mode.
type TokenService interface {
	GenerateAccessToken(userID uuid.UUID, role string, ttl time.Duration) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
}

// TokenClaims represents the claims in an access token
type TokenClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAdmin reports whether the bearer may use admin endpoints
func (c *TokenClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	signingMethod jwt.SigningMethod
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	secretKey     []byte
	useRSAKeys    bool
	issuer        string
	audience      string
}

// NewTokenService creates a new token service
func NewTokenService(issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	s := &TokenServiceImpl{
		useRSAKeys: useRSAKeys,
		issuer:     issuer,
		audience:   audience,
	}

	if useRSAKeys {
		if publicKeyPEM == "" {
			return nil, fmt.Errorf("public key is required when using RSA keys")
		}
		pub, err := ParseRSAPublicKey(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		s.publicKey = pub
		if privateKeyPEM != "" {
			priv, err := ParseRSAPrivateKey(privateKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
			s.privateKey = priv
		}
		s.signingMethod = jwt.SigningMethodRS256
		return s, nil
	}

	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required when not using RSA keys")
	}
	s.secretKey = []byte(secretKey)
	s.signingMethod = jwt.SigningMethodHS256
	return s, nil
}

// GenerateAccessToken mints a signed access token for userID
func (s *TokenServiceImpl) GenerateAccessToken(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	if s.useRSAKeys && s.privateKey == nil {
		return "", fmt.Errorf("private key is not configured")
	}

	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}

	now := utils.UTCNow()
	claims := jwt.MapClaims{
		"user_id":    userID.String(),
		"role":       role,
		"token_type": "access",
		"jti":        tokenID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"iss":        s.issuer,
		"aud":        s.audience,
	}

	token := jwt.NewWithClaims(s.signingMethod, claims)
	if s.useRSAKeys {
		return token.SignedString(s.privateKey)
	}
	return token.SignedString(s.secretKey)
}

// ValidateAccessToken verifies signature, expiry, issuer and audience and returns the claims
func (s *TokenServiceImpl) ValidateAccessToken(token string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{s.signingMethod.Alg()}), jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (any, error) {
		if s.useRSAKeys {
			return s.publicKey, nil
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	if tokenType, _ := claims["token_type"].(string); tokenType != "access" {
		return nil, ErrTokenInvalid
	}
	rawUserID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return nil, ErrTokenInvalid
	}
	tokenID, _ := claims["jti"].(string)

	out := &TokenClaims{UserID: userID, Role: role, TokenID: tokenID}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}

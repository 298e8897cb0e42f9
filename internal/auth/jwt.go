// Package auth validates bearer tokens issued by the identity provider and
// turns them into tenant scopes.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims: the user, their organization and role.
type Claims struct {
	UserID         uuid.UUID   `json:"user_id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	Email          string      `json:"email"`
	Role           models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Scope converts the claims to a tenant scope.
func (c *Claims) Scope() tenant.Scope {
	return tenant.Scope{OrganizationID: c.OrganizationID, UserID: c.UserID, Role: c.Role, Email: c.Email}
}

// JWTService handles token validation. Generate exists for service-to-service
// calls and tests; end-user tokens come from the identity provider.
type JWTService struct {
	secret []byte
	issuer string
	expire time.Duration
}

// NewJWTService creates a JWT service. An empty issuer accepts any issuer.
func NewJWTService(secret, issuer string, expire time.Duration) *JWTService {
	if expire <= 0 {
		expire = time.Hour
	}
	return &JWTService{
		secret: []byte(secret),
		issuer: issuer,
		expire: expire,
	}
}

// Generate creates a signed token for sc.
func (s *JWTService) Generate(sc tenant.Scope) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:         sc.UserID,
		OrganizationID: sc.OrganizationID,
		Email:          sc.Email,
		Role:           sc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error. Tokens
// without an organization, user or known role are rejected.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope().Validate() != nil || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ScopeFromToken validates a token and returns its scope.
func (s *JWTService) ScopeFromToken(tokenString string) (tenant.Scope, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return tenant.Scope{}, err
	}
	return claims.Scope(), nil
}

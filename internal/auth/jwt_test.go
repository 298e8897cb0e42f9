package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	s := NewJWTService("secret", "idp", time.Hour)
	sc := tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleModerator, Email: "m@acme.test"}
	token, err := s.Generate(sc)
	require.NoError(t, err)

	got, err := s.ScopeFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, sc, got)
}

func TestValidateRejects(t *testing.T) {
	s := NewJWTService("secret", "idp", time.Hour)
	sc := tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser}

	wrongKey, err := NewJWTService("other", "idp", time.Hour).Generate(sc)
	require.NoError(t, err)
	_, err = s.Validate(wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTService("secret", "elsewhere", time.Hour).Generate(sc)
	require.NoError(t, err)
	_, err = s.Validate(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noOrg, err := s.Generate(tenant.Scope{UserID: uuid.New(), Role: models.RoleUser})
	require.NoError(t, err)
	_, err = s.Validate(noOrg)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badRole, err := s.Generate(tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: "owner"})
	require.NoError(t, err)
	_, err = s.Validate(badRole)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: sc.UserID, OrganizationID: sc.OrganizationID, Role: sc.Role,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "idp", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	raw, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Validate("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

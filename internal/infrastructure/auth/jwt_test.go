package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/backend/internal/infrastructure/config"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                strings.Repeat("s", 32),
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "hms-backend",
	})
}

func TestJWTService_GenerateToken(t *testing.T) {
	t.Run("generates a valid signed token", func(t *testing.T) {
		svc := newTestJWTService()
		userID := uuid.New()

		token, expiresAt, err := svc.GenerateToken(GenerateTokenInput{
			UserID:   userID,
			Username: "jwanjiru",
			Role:     "cashier",
		})

		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)
	})
}

func TestJWTService_ValidateToken(t *testing.T) {
	t.Run("round-trips claims", func(t *testing.T) {
		svc := newTestJWTService()
		userID := uuid.New()

		token, _, err := svc.GenerateToken(GenerateTokenInput{
			UserID:   userID,
			Username: "jwanjiru",
			Role:     "cashier",
		})
		require.NoError(t, err)

		claims, err := svc.ValidateToken(token)

		require.NoError(t, err)
		assert.Equal(t, userID.String(), claims.UserID)
		assert.Equal(t, "jwanjiru", claims.Username)
		assert.Equal(t, "cashier", claims.Role)
		assert.Equal(t, "hms-backend", claims.Issuer)

		parsed, err := claims.UserUUID()
		require.NoError(t, err)
		assert.Equal(t, userID, parsed)
	})

	t.Run("rejects garbage tokens", func(t *testing.T) {
		svc := newTestJWTService()

		claims, err := svc.ValidateToken("not.a.token")

		assert.Nil(t, claims)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects token signed with a different secret", func(t *testing.T) {
		svc := newTestJWTService()
		other := NewJWTService(config.JWTConfig{
			Secret:                strings.Repeat("x", 32),
			AccessTokenExpiration: 15 * time.Minute,
			Issuer:                "hms-backend",
		})

		token, _, err := other.GenerateToken(GenerateTokenInput{UserID: uuid.New(), Username: "intruder"})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		svc := NewJWTService(config.JWTConfig{
			Secret:                strings.Repeat("s", 32),
			AccessTokenExpiration: -time.Minute,
			Issuer:                "hms-backend",
		})

		token, _, err := svc.GenerateToken(GenerateTokenInput{UserID: uuid.New(), Username: "late"})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("rejects token without user id", func(t *testing.T) {
		svc := newTestJWTService()

		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "hms-backend",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			},
			Username: "ghost",
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(strings.Repeat("s", 32)))
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrMissingUserID)
	})

	t.Run("rejects token with unexpected signing method", func(t *testing.T) {
		svc := newTestJWTService()

		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			UserID: uuid.New().String(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

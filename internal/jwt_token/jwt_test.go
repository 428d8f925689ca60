package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vitalproof/pkg/domain-errors"
)

const testKey = "test-signing-key"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	v := NewValidator(testKey, "vitalproof-idp", "vitalproof")
	valid := jwt.RegisteredClaims{
		Issuer:    "vitalproof-idp",
		Audience:  jwt.ClaimStrings{"vitalproof"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		ID:        "jti-1",
	}

	t.Run("user_id claim wins", func(t *testing.T) {
		token := sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{UserID: "user-1", RegisteredClaims: valid})

		claims, err := v.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "jti-1", claims.JTI)
	})

	t.Run("sub is used when user_id is absent", func(t *testing.T) {
		rc := valid
		rc.Subject = "user-2"
		token := sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{RegisteredClaims: rc})

		claims, err := v.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-2", claims.UserID)
	})

	t.Run("expired token", func(t *testing.T) {
		rc := valid
		rc.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		token := sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{UserID: "user-1", RegisteredClaims: rc})

		_, err := v.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong key", func(t *testing.T) {
		token := sign(t, jwt.SigningMethodHS256, []byte("other"), Claims{UserID: "user-1", RegisteredClaims: valid})

		_, err := v.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong audience", func(t *testing.T) {
		rc := valid
		rc.Audience = jwt.ClaimStrings{"someone-else"}
		token := sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{UserID: "user-1", RegisteredClaims: rc})

		_, err := v.ValidateToken(token)
		assert.Error(t, err)
	})
}

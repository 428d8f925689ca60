package jwttoken

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	dErrors "vitalproof/pkg/domain-errors"
	authmw "vitalproof/pkg/platform/middleware/auth"
)

// Claims is the access token shape issued by the upstream identity service.
// The subject is carried in user_id, falling back to the registered sub claim.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HS256 access tokens. Token issuance lives outside this
// service.
type Validator struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewValidator(signingKey, issuer, audience string) *Validator {
	return &Validator{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// ValidateToken implements authmw.JWTValidator.
func (v *Validator) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	return &authmw.JWTClaims{UserID: subject, JTI: claims.ID}, nil
}

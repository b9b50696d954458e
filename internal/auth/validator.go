package auth

//go:generate mockgen -destination=mocks/mock_validator.go -package=mocks -source=validator.go TokenValidator

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates bearer tokens and returns their claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// hmacValidator accepts HS256 tokens signed with a shared secret.
type hmacValidator struct {
	secret []byte
	parser *jwt.Parser
}

// NewHMACValidator creates a validator for HS256 tokens. Issuer and audience
// are only checked when non-empty.
func NewHMACValidator(secret []byte, issuer, audience string) (TokenValidator, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret cannot be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &hmacValidator{secret: secret, parser: jwt.NewParser(opts...)}, nil
}

func (v *hmacValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("invalid token: subject is required")
	}
	return claims, nil
}

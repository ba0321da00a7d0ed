package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
)

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// ValidateAccessToken parses an HS256 token and returns its claims.
func (s *AuthService) ValidateAccessToken(ctx context.Context, tokenString string) (*JWTClaims, error) {
	_, span := authTracer.Start(ctx, "AuthService.ValidateAccessToken")
	defer span.End()

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	if claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	if claims.Role != RoleUser && claims.Role != RoleOperator {
		return nil, &domain.ErrUnauthorized{Message: "token has no valid role"}
	}

	span.SetAttributes(attribute.String("auth.role", claims.Role))
	return claims, nil
}

// IssueToken signs an access token for subject with the given role.
func (s *AuthService) IssueToken(subject, role string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:  subject,
		Role: role,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "ledger-settlement",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

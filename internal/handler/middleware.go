package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// OperatorKeyHeader carries the static operator key as an alternative to a token.
const OperatorKeyHeader = "X-Operator-Key"

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func withPrincipal(r *http.Request, p Principal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalKey, p))
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", &domain.ErrUnauthorized{Message: "missing bearer token"}
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", &domain.ErrUnauthorized{Message: "invalid authorization header format"}
	}
	return parts[1], nil
}

// JWTAuthMiddleware validates Bearer tokens, requires role and injects the
// Principal into the context.
func JWTAuthMiddleware(authSvc *service.AuthService, role string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				logger.Warn("auth: missing or malformed token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				handleServiceError(w, err, logger)
				return
			}

			claims, err := authSvc.ValidateAccessToken(r.Context(), token)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}
			if claims.Role != role {
				handleServiceError(w, &domain.ErrForbidden{Action: "requires role " + role}, logger)
				return
			}

			next.ServeHTTP(w, withPrincipal(r, Principal{Subject: claims.Sub, Role: claims.Role}))
		})
	}
}

// OperatorAuthMiddleware accepts an operator token or a valid X-Operator-Key.
func OperatorAuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	jwtAuth := JWTAuthMiddleware(authSvc, service.RoleOperator, logger)
	return func(next http.Handler) http.Handler {
		viaToken := jwtAuth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(OperatorKeyHeader)
			if key == "" {
				viaToken.ServeHTTP(w, r)
				return
			}
			if err := authSvc.VerifyOperatorKey(key); err != nil {
				logger.Warn("auth: operator key rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				handleServiceError(w, err, logger)
				return
			}
			next.ServeHTTP(w, withPrincipal(r, Principal{Subject: "operator-key", Role: service.RoleOperator}))
		})
	}
}

// RequireProfileOwner rejects requests whose {profileId} differs from the
// token subject.
func RequireProfileOwner(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || p.Subject != chi.URLParam(r, "profileId") {
				handleServiceError(w, &domain.ErrForbidden{Action: "access to another profile"}, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

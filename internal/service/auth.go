package service

import (
	"errors"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

// Roles carried in access tokens.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
)

const bcryptCost = 12

// AuthService validates bearer tokens and the static operator key.
// Tokens are issued by an upstream identity provider sharing the HMAC secret;
// IssueToken exists for tooling and tests.
type AuthService struct {
	jwtSecret       []byte
	operatorKeyHash []byte
	accessTTL       time.Duration
	logger          *zap.Logger
}

// NewAuthService creates a new auth service. An empty operatorKeyHash
// disables operator key authentication.
func NewAuthService(jwtSecret, operatorKeyHash string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	s := &AuthService{
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
	if operatorKeyHash != "" {
		s.operatorKeyHash = []byte(operatorKeyHash)
	}
	return s
}

// VerifyOperatorKey checks a raw operator key against the configured bcrypt hash.
func (s *AuthService) VerifyOperatorKey(key string) error {
	if len(s.operatorKeyHash) == 0 || key == "" {
		return &domain.ErrUnauthorized{Message: "operator key authentication is not available"}
	}
	err := bcrypt.CompareHashAndPassword(s.operatorKeyHash, []byte(key))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return &domain.ErrUnauthorized{Message: "invalid operator key"}
	}
	if err != nil {
		s.logger.Error("operator key hash is unusable", zap.Error(err))
		return &domain.ErrUnauthorized{Message: "invalid operator key"}
	}
	return nil
}

// HashOperatorKey produces the value expected in OPERATOR_KEY_HASH.
func HashOperatorKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

package service

import (
	"context"
	"crypto/subtle"

	"github.com/spec-kit/deskbot/internal/auth"
	"github.com/spec-kit/deskbot/internal/config"
	"github.com/spec-kit/deskbot/internal/domain"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// OperatorService authenticates the ops API operator.
type OperatorService struct {
	name         string
	passwordHash string
	tokens       *auth.TokenManager
}

// NewOperatorService builds the service. Login is disabled while no
// password hash is configured.
func NewOperatorService(cfg config.AuthConfig, tokens *auth.TokenManager) *OperatorService {
	return &OperatorService{
		name:         cfg.OperatorName,
		passwordHash: cfg.OperatorPasswordHash,
		tokens:       tokens,
	}
}

// TokenManager exposes the token manager for middleware wiring.
func (s *OperatorService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Login checks the operator credentials and issues an access token.
func (s *OperatorService) Login(_ context.Context, name, password string) (string, domain.Token, error) {
	if s.passwordHash == "" {
		return "", domain.Token{}, apperrors.NewUnauthorized("operator login is disabled")
	}
	nameOK := subtle.ConstantTimeCompare([]byte(name), []byte(s.name)) == 1
	passwordErr := auth.ComparePassword(s.passwordHash, password)
	if !nameOK || passwordErr != nil {
		return "", domain.Token{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, meta, err := s.tokens.GenerateToken(s.name, domain.SubjectTypeOperator)
	if err != nil {
		return "", domain.Token{}, apperrors.NewInternalError(err)
	}
	return token, meta, nil
}

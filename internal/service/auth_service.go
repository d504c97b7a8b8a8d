package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AuthService mints bearer tokens for existing agents. Credential checks belong to the
// external identity provider; this only serves operators holding the shared secret.
type AuthService struct {
	directory *AgentDirectory
	tokens    *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(directory *AgentDirectory, tokens *auth.TokenManager) *AuthService {
	return &AuthService{directory: directory, tokens: tokens}
}

// IssueToken signs a token for an ACTIVE agent.
func (s *AuthService) IssueToken(ctx context.Context, agentID string) (string, time.Time, error) {
	agent, err := s.directory.Get(ctx, agentID)
	if err != nil {
		return "", time.Time{}, err
	}
	if agent.Status != domain.AgentStatusActive {
		return "", time.Time{}, apperrors.NewAgentUnavailable(map[string]any{"agent_id": agent.ID, "status": agent.Status})
	}
	token, exp, err := s.tokens.GenerateToken(agent.ID, agent.Role)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	return token, exp, nil
}

// TokenManager exposes the signer.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Roster is the seed file layout: groups first, then the agents that join them.
type Roster struct {
	Groups []RosterGroup `yaml:"groups"`
	Agents []RosterAgent `yaml:"agents"`
}

type RosterGroup struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type RosterAgent struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Email     string   `yaml:"email"`
	Role      string   `yaml:"role"`
	Status    string   `yaml:"status"`
	Groups    []string `yaml:"groups"`
	AvatarURL string   `yaml:"avatar_url"`
}

// SeedResult counts what a roster run changed.
type SeedResult struct {
	Groups  int
	Created int
	Updated int
}

func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}
	for i, a := range roster.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agent #%d (%s): id is required", i+1, a.Email)
		}
	}
	return &roster, nil
}

// ApplyRoster upserts groups and agents. Existing agents get their profile, role and
// memberships overwritten; a listed status is applied through the directory so
// deactivation still releases tickets.
func ApplyRoster(ctx context.Context, directory *service.AgentDirectory, roster *Roster) (SeedResult, error) {
	var result SeedResult
	for _, g := range roster.Groups {
		if _, err := directory.UpsertGroup(ctx, domain.Group{ID: g.ID, Name: g.Name, Description: g.Description}); err != nil {
			return result, fmt.Errorf("group %s: %w", g.ID, err)
		}
		result.Groups++
	}

	for _, a := range roster.Agents {
		var (
			role   domain.AgentRole
			status domain.AgentStatus
			err    error
		)
		if a.Role != "" {
			if role, err = domain.ParseAgentRole(a.Role); err != nil {
				return result, fmt.Errorf("agent %s: %w", a.ID, err)
			}
		}
		if a.Status != "" {
			if status, err = domain.ParseAgentStatus(a.Status); err != nil {
				return result, fmt.Errorf("agent %s: %w", a.ID, err)
			}
		}

		existing, err := directory.Get(ctx, a.ID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			if _, err := directory.Register(ctx, service.AgentInput{
				ID:        a.ID,
				Name:      a.Name,
				Email:     a.Email,
				Role:      role,
				Status:    status,
				GroupIDs:  a.Groups,
				AvatarURL: a.AvatarURL,
			}); err != nil {
				return result, fmt.Errorf("agent %s: %w", a.ID, err)
			}
			result.Created++
			continue
		case err != nil:
			return result, fmt.Errorf("agent %s: %w", a.ID, err)
		}

		update := service.AgentUpdate{
			Name:      &a.Name,
			Email:     &a.Email,
			GroupIDs:  &a.Groups,
			AvatarURL: &a.AvatarURL,
		}
		if role != "" {
			update.Role = &role
		}
		if _, err := directory.Update(ctx, a.ID, update); err != nil {
			return result, fmt.Errorf("agent %s: %w", a.ID, err)
		}
		if status != "" && status != existing.Status {
			if _, err := directory.SetStatus(ctx, a.ID, status); err != nil {
				return result, fmt.Errorf("agent %s: %w", a.ID, err)
			}
		}
		result.Updated++
	}
	return result, nil
}

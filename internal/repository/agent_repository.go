package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const agentColumns = `a.id, a.name, a.email, a.role, a.status, a.last_assigned_at, a.avatar_url,
               a.created_at, a.updated_at, a.version,
               COALESCE(ARRAY(SELECT ag.group_id FROM agent_groups ag WHERE ag.agent_id = a.id ORDER BY ag.group_id), '{}')`

func (r *PostgresRepository) LoadAgent(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents a WHERE a.id=$1`
	agent, err := scanAgent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classifyPgError(err)
	}
	return agent, nil
}

func (r *PostgresRepository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents a ORDER BY a.id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	result := []domain.Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, classifyPgError(err)
		}
		result = append(result, *agent)
	}
	return result, classifyPgError(rows.Err())
}

// SaveAgent inserts when Version is zero, otherwise updates under the version check.
// Group memberships are rewritten in the same transaction.
func (r *PostgresRepository) SaveAgent(ctx context.Context, agent *domain.Agent) error {
	const insert = `
        INSERT INTO agents (id, name, email, role, status, last_assigned_at, avatar_url, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1)
        ON CONFLICT (id) DO NOTHING
        RETURNING version`
	const update = `
        UPDATE agents SET name=$1, email=$2, role=$3, status=$4, last_assigned_at=$5, avatar_url=$6,
            updated_at=$7, version=version+1
        WHERE id=$8 AND version=$9
        RETURNING version`

	var version int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		if agent.Version == 0 {
			err = tx.QueryRow(ctx, insert,
				agent.ID,
				agent.Name,
				agent.Email,
				agent.Role,
				agent.Status,
				agent.LastAssignedAt,
				agent.AvatarURL,
				agent.CreatedAt,
				agent.UpdatedAt,
			).Scan(&version)
		} else {
			err = tx.QueryRow(ctx, update,
				agent.Name,
				agent.Email,
				agent.Role,
				agent.Status,
				agent.LastAssignedAt,
				agent.AvatarURL,
				agent.UpdatedAt,
				agent.ID,
				agent.Version,
			).Scan(&version)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, tx, agent)
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM agent_groups WHERE agent_id=$1`, agent.ID); err != nil {
			return err
		}
		for _, groupID := range agent.GroupIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO agent_groups (agent_id, group_id) VALUES ($1,$2)`, agent.ID, groupID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classifyPgError(err)
	}
	agent.Version = version
	return nil
}

func (r *PostgresRepository) missOrConflict(ctx context.Context, tx pgx.Tx, agent *domain.Agent) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM agents WHERE id=$1)`, agent.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists && agent.Version != 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var (
		agent          domain.Agent
		role           string
		status         string
		lastAssignedAt *time.Time
	)
	if err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&role,
		&status,
		&lastAssignedAt,
		&agent.AvatarURL,
		&agent.CreatedAt,
		&agent.UpdatedAt,
		&agent.Version,
		&agent.GroupIDs,
	); err != nil {
		return nil, err
	}
	var err error
	if agent.Role, err = domain.ParseAgentRole(role); err != nil {
		return nil, corrupt(err)
	}
	if agent.Status, err = domain.ParseAgentStatus(status); err != nil {
		return nil, corrupt(err)
	}
	agent.LastAssignedAt = lastAssignedAt
	return &agent, nil
}

package repository

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func (r *PostgresRepository) SaveGroup(ctx context.Context, group *domain.Group) error {
	const query = `
        INSERT INTO support_groups (id, name, description, created_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description`
	_, err := r.db.Exec(ctx, query,
		group.ID,
		group.Name,
		group.Description,
		group.CreatedAt,
	)
	return classifyPgError(err)
}

func (r *PostgresRepository) ListGroups(ctx context.Context) ([]domain.Group, error) {
	const query = `
        SELECT id, name, description, created_at
        FROM support_groups ORDER BY id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	result := []domain.Group{}
	for rows.Next() {
		var group domain.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt); err != nil {
			return nil, classifyPgError(err)
		}
		result = append(result, group)
	}
	return result, classifyPgError(rows.Err())
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const ticketColumns = `id, number, subject, requester_name, requester_email, status, previous_status,
               priority, category, agent_id, group_id, help_needed,
               transfer_target_agent_id, transfer_requested_by, transfer_requested_at,
               created_at, updated_at, assigned_at, version`

func (r *PostgresRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	// Replaying the same id returns the stored number instead of inserting twice.
	const query = `
        INSERT INTO tickets (id, subject, requester_name, requester_email, status, priority, category,
            agent_id, group_id, help_needed, created_at, updated_at, assigned_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1)
        ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
        RETURNING number, version`

	return classifyPgError(r.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query,
			ticket.ID,
			ticket.Subject,
			ticket.RequesterName,
			ticket.RequesterEmail,
			ticket.Status,
			ticket.Priority,
			ticket.Category,
			ticket.AgentID,
			ticket.GroupID,
			ticket.HelpNeeded,
			ticket.CreatedAt,
			ticket.UpdatedAt,
			ticket.AssignedAt,
		).Scan(&ticket.Number, &ticket.Version); err != nil {
			return err
		}
		for i := range ticket.Messages {
			if err := insertMessage(ctx, tx, ticket.ID, &ticket.Messages[i]); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (r *PostgresRepository) LoadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classifyPgError(err)
	}
	msgs, err := r.listMessages(ctx, id)
	if err != nil {
		return nil, classifyPgError(err)
	}
	ticket.Messages = msgs
	return ticket, nil
}

func (r *PostgresRepository) SaveTicket(ctx context.Context, ticket *domain.Ticket) error {
	version, err := updateTicket(ctx, r.db, ticket)
	if err != nil {
		return classifyPgError(err)
	}
	ticket.Version = version
	return nil
}

// SaveTicketWithMessage runs the versioned update and the message insert in one
// transaction; the caller's version only moves once the commit succeeds.
func (r *PostgresRepository) SaveTicketWithMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) error {
	var version int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		if version, err = updateTicket(ctx, tx, ticket); err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		return insertMessage(ctx, tx, ticket.ID, msg)
	})
	if err != nil {
		return classifyPgError(err)
	}
	ticket.Version = version
	return nil
}

func updateTicket(ctx context.Context, q querier, ticket *domain.Ticket) (int64, error) {
	const query = `
        UPDATE tickets SET subject=$1, requester_name=$2, requester_email=$3, status=$4, previous_status=$5,
            priority=$6, category=$7, agent_id=$8, group_id=$9, help_needed=$10,
            transfer_target_agent_id=$11, transfer_requested_by=$12, transfer_requested_at=$13,
            updated_at=$14, assigned_at=$15, version=version+1
        WHERE id=$16 AND version=$17
        RETURNING version`

	var (
		target      *string
		requestedBy *string
		requestedAt *time.Time
	)
	if ticket.Transfer != nil {
		target = &ticket.Transfer.TargetAgentID
		requestedBy = ticket.Transfer.RequestedBy
		requestedAt = &ticket.Transfer.RequestedAt
	}

	var version int64
	err := q.QueryRow(ctx, query,
		ticket.Subject,
		ticket.RequesterName,
		ticket.RequesterEmail,
		ticket.Status,
		ticket.PreviousStatus,
		ticket.Priority,
		ticket.Category,
		ticket.AgentID,
		ticket.GroupID,
		ticket.HelpNeeded,
		target,
		requestedBy,
		requestedAt,
		ticket.UpdatedAt,
		ticket.AssignedAt,
		ticket.ID,
		ticket.Version,
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// no row matched: distinguish a missing ticket from a stale version
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, ErrVersionConflict
}

func (r *PostgresRepository) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if filter.GroupID != nil {
		args = append(args, *filter.GroupID)
		clauses = append(clauses, fmt.Sprintf("group_id=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "agent_id IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at ASC, number ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), normalizeLimit(filter.Limit), offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, classifyPgError(err)
		}
		result = append(result, *ticket)
	}
	return result, classifyPgError(rows.Err())
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket         domain.Ticket
		status         string
		previousStatus *string
		priority       string
		target         *string
		requestedBy    *string
		requestedAt    *time.Time
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Subject,
		&ticket.RequesterName,
		&ticket.RequesterEmail,
		&status,
		&previousStatus,
		&priority,
		&ticket.Category,
		&ticket.AgentID,
		&ticket.GroupID,
		&ticket.HelpNeeded,
		&target,
		&requestedBy,
		&requestedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.AssignedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}

	var err error
	if ticket.Status, err = domain.ParseTicketStatus(status); err != nil {
		return nil, corrupt(err)
	}
	if previousStatus != nil {
		prev, err := domain.ParseTicketStatus(*previousStatus)
		if err != nil {
			return nil, corrupt(err)
		}
		ticket.PreviousStatus = &prev
	}
	if ticket.Priority, err = domain.ParseTicketPriority(priority); err != nil {
		return nil, corrupt(err)
	}
	if target != nil && requestedAt != nil {
		ticket.Transfer = &domain.TransferProposal{
			TargetAgentID: *target,
			RequestedBy:   requestedBy,
			RequestedAt:   *requestedAt,
		}
	}
	return &ticket, nil
}

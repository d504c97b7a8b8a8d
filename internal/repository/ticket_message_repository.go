package repository

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// insertMessage is idempotent on the message id so retried appends never duplicate.
func insertMessage(ctx context.Context, tx querier, ticketID string, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, author_id, message_type, content, has_attachment, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING`
	msg.TicketID = ticketID
	_, err := tx.Exec(ctx, query,
		msg.ID,
		ticketID,
		msg.AuthorID,
		msg.Type,
		msg.Content,
		msg.HasAttachment,
		msg.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) listMessages(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, author_id, message_type, content, has_attachment, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var (
			msg     domain.Message
			msgType string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorID,
			&msgType,
			&msg.Content,
			&msg.HasAttachment,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if msg.Type, err = domain.ParseMessageType(msgType); err != nil {
			return nil, corrupt(err)
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

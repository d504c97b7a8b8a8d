package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketHistoryRepository stores audit entries. Record is idempotent on the entry id.
type TicketHistoryRepository interface {
	Record(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	db DB
}

// NewTicketHistoryRepository builds the Postgres-backed audit store.
func NewTicketHistoryRepository(db DB) TicketHistoryRepository {
	return &ticketHistoryRepository{db: db}
}

func (r *ticketHistoryRepository) Record(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, actor_id, event_type, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, query,
		history.ID,
		history.TicketID,
		history.ActorID,
		history.EventType,
		history.Payload,
		history.CreatedAt,
	)
	return classifyPgError(err)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, actor_id, event_type, payload, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	result := make([]domain.TicketHistory, 0)
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ActorID,
			&history.EventType,
			&history.Payload,
			&history.CreatedAt,
		); err != nil {
			return nil, classifyPgError(err)
		}
		result = append(result, history)
	}
	return result, classifyPgError(rows.Err())
}

// historyDoc keeps the payload as the JSON text the event was rendered to.
type historyDoc struct {
	ID        string    `bson:"_id"`
	TicketID  string    `bson:"ticket_id"`
	ActorID   *string   `bson:"actor_id,omitempty"`
	EventType string    `bson:"event_type"`
	Payload   string    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
}

type mongoTicketHistory struct {
	coll *mongo.Collection
}

// NewMongoTicketHistoryRepository stores audit entries in the ticket_history collection.
func NewMongoTicketHistoryRepository(db *mongo.Database) TicketHistoryRepository {
	return &mongoTicketHistory{coll: db.Collection("ticket_history")}
}

func (r *mongoTicketHistory) Record(ctx context.Context, history *domain.TicketHistory) error {
	doc := historyDoc{
		ID:        history.ID,
		TicketID:  history.TicketID,
		ActorID:   history.ActorID,
		EventType: history.EventType,
		Payload:   string(history.Payload),
		CreatedAt: history.CreatedAt,
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true))
	return classifyMongoError(err)
}

func (r *mongoTicketHistory) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	cur, err := r.coll.Find(ctx,
		bson.M{"ticket_id": ticketID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classifyMongoError(err)
	}
	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classifyMongoError(err)
	}
	result := make([]domain.TicketHistory, 0, len(docs))
	for _, d := range docs {
		result = append(result, domain.TicketHistory{
			ID:        d.ID,
			TicketID:  d.TicketID,
			ActorID:   d.ActorID,
			EventType: d.EventType,
			Payload:   []byte(d.Payload),
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return result, nil
}

// MemoryTicketHistory keeps audit entries in process.
type MemoryTicketHistory struct {
	mu      sync.RWMutex
	entries map[string][]domain.TicketHistory
	seen    map[string]struct{}
}

// NewMemoryTicketHistory creates an empty audit store.
func NewMemoryTicketHistory() *MemoryTicketHistory {
	return &MemoryTicketHistory{
		entries: make(map[string][]domain.TicketHistory),
		seen:    make(map[string]struct{}),
	}
}

func (r *MemoryTicketHistory) Record(ctx context.Context, history *domain.TicketHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[history.ID]; dup {
		return nil
	}
	r.seen[history.ID] = struct{}{}
	entry := *history
	entry.Payload = append([]byte(nil), history.Payload...)
	r.entries[history.TicketID] = append(r.entries[history.TicketID], entry)
	return nil
}

func (r *MemoryTicketHistory) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	result := append([]domain.TicketHistory{}, r.entries[ticketID]...)
	r.mu.RUnlock()
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const (
	ticketsCollection  = "tickets"
	agentsCollection   = "agents"
	groupsCollection   = "groups"
	countersCollection = "counters"

	ticketNumberCounter = "ticket_number"
)

// MongoRepository implements Repository over a MongoDB database. Messages are embedded
// in their ticket document.
type MongoRepository struct {
	tickets  *mongo.Collection
	agents   *mongo.Collection
	groups   *mongo.Collection
	counters *mongo.Collection
}

// NewMongoRepository binds the repository to db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		tickets:  db.Collection(ticketsCollection),
		agents:   db.Collection(agentsCollection),
		groups:   db.Collection(groupsCollection),
		counters: db.Collection(countersCollection),
	}
}

// EnsureIndexes creates the secondary indexes ticket listings rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "number", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return classifyMongoError(err)
	}
	_, err = r.tickets.Database().Collection("ticket_history").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ticket_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return classifyMongoError(err)
}

type messageDoc struct {
	ID            string    `bson:"_id"`
	AuthorID      *string   `bson:"author_id,omitempty"`
	Type          string    `bson:"type"`
	Content       string    `bson:"content"`
	HasAttachment bool      `bson:"has_attachment"`
	CreatedAt     time.Time `bson:"created_at"`
}

type transferDoc struct {
	TargetAgentID string    `bson:"target_agent_id"`
	RequestedBy   *string   `bson:"requested_by,omitempty"`
	RequestedAt   time.Time `bson:"requested_at"`
}

type ticketDoc struct {
	ID             string       `bson:"_id"`
	Number         int64        `bson:"number"`
	Subject        string       `bson:"subject"`
	RequesterName  string       `bson:"requester_name"`
	RequesterEmail string       `bson:"requester_email"`
	Status         string       `bson:"status"`
	PreviousStatus *string      `bson:"previous_status"`
	Priority       string       `bson:"priority"`
	Category       string       `bson:"category"`
	AgentID        *string      `bson:"agent_id"`
	GroupID        *string      `bson:"group_id"`
	HelpNeeded     bool         `bson:"help_needed"`
	Messages       []messageDoc `bson:"messages,omitempty"`
	Transfer       *transferDoc `bson:"transfer"`
	CreatedAt      time.Time    `bson:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at"`
	AssignedAt     *time.Time   `bson:"assigned_at"`
	Version        int64        `bson:"version"`
}

type agentDoc struct {
	ID             string     `bson:"_id"`
	Name           string     `bson:"name"`
	Email          string     `bson:"email"`
	Role           string     `bson:"role"`
	Status         string     `bson:"status"`
	GroupIDs       []string   `bson:"group_ids"`
	LastAssignedAt *time.Time `bson:"last_assigned_at"`
	AvatarURL      string     `bson:"avatar_url"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
	Version        int64      `bson:"version"`
}

type groupDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (r *MongoRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if done, err := r.adoptExisting(ctx, ticket); done || err != nil {
		return err
	}

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": ticketNumberCounter},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return classifyMongoError(err)
	}

	doc := toTicketDoc(ticket)
	doc.Number = counter.Seq
	doc.Version = 1
	for i := range ticket.Messages {
		ticket.Messages[i].TicketID = ticket.ID
	}
	if _, err := r.tickets.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// a replayed insert raced the first one; report what was stored
			if done, err := r.adoptExisting(ctx, ticket); done || err != nil {
				return err
			}
		}
		return classifyMongoError(err)
	}
	ticket.Number = doc.Number
	ticket.Version = doc.Version
	return nil
}

// adoptExisting copies the stored number and version onto ticket when its id is
// already present, which makes CreateTicket idempotent.
func (r *MongoRepository) adoptExisting(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	var stored struct {
		Number  int64 `bson:"number"`
		Version int64 `bson:"version"`
	}
	opts := options.FindOne().SetProjection(bson.M{"number": 1, "version": 1})
	err := r.tickets.FindOne(ctx, bson.M{"_id": ticket.ID}, opts).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, classifyMongoError(err)
	}
	ticket.Number = stored.Number
	ticket.Version = stored.Version
	return true, nil
}

func (r *MongoRepository) LoadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var doc ticketDoc
	if err := r.tickets.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, classifyMongoError(err)
	}
	return doc.toDomain()
}

func (r *MongoRepository) SaveTicket(ctx context.Context, ticket *domain.Ticket) error {
	return r.SaveTicketWithMessage(ctx, ticket, nil)
}

// SaveTicketWithMessage applies the field update, the version bump and the message
// push as a single UpdateOne, so a document never carries one without the other. A
// message id already in the thread is not pushed again; the fields still update.
func (r *MongoRepository) SaveTicketWithMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) error {
	doc := toTicketDoc(ticket)
	update := bson.M{
		"$set": bson.M{
			"subject":         doc.Subject,
			"requester_name":  doc.RequesterName,
			"requester_email": doc.RequesterEmail,
			"status":          doc.Status,
			"previous_status": doc.PreviousStatus,
			"priority":        doc.Priority,
			"category":        doc.Category,
			"agent_id":        doc.AgentID,
			"group_id":        doc.GroupID,
			"help_needed":     doc.HelpNeeded,
			"transfer":        doc.Transfer,
			"updated_at":      doc.UpdatedAt,
			"assigned_at":     doc.AssignedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	filter := bson.M{"_id": ticket.ID, "version": ticket.Version}
	if msg != nil {
		msg.TicketID = ticket.ID
		update["$push"] = bson.M{"messages": toMessageDoc(*msg)}
		filter["messages._id"] = bson.M{"$ne": msg.ID}
	}
	res, err := r.tickets.UpdateOne(ctx, filter, update)
	if err != nil {
		return classifyMongoError(err)
	}
	if res.MatchedCount == 0 {
		if msg != nil {
			n, err := r.tickets.CountDocuments(ctx, bson.M{"_id": ticket.ID, "version": ticket.Version, "messages._id": msg.ID})
			if err != nil {
				return classifyMongoError(err)
			}
			if n > 0 {
				return r.SaveTicketWithMessage(ctx, ticket, nil)
			}
		}
		return r.missOrConflict(ctx, r.tickets, ticket.ID)
	}
	ticket.Version++
	return nil
}

func (r *MongoRepository) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query := bson.M{}
	if filter.AgentID != nil {
		query["agent_id"] = *filter.AgentID
	}
	if filter.GroupID != nil {
		query["group_id"] = *filter.GroupID
	}
	if filter.Unassigned {
		query["agent_id"] = nil
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query["status"] = bson.M{"$in": statuses}
	}

	opts := options.Find().
		SetProjection(bson.M{"messages": 0}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "number", Value: 1}}).
		SetLimit(int64(normalizeLimit(filter.Limit)))
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.tickets.Find(ctx, query, opts)
	if err != nil {
		return nil, classifyMongoError(err)
	}
	defer cursor.Close(ctx)

	var docs []ticketDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError(err)
	}
	result := make([]domain.Ticket, 0, len(docs))
	for i := range docs {
		ticket, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, nil
}

func (r *MongoRepository) LoadAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var doc agentDoc
	if err := r.agents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, classifyMongoError(err)
	}
	return doc.toDomain()
}

func (r *MongoRepository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	cursor, err := r.agents.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classifyMongoError(err)
	}
	defer cursor.Close(ctx)

	var docs []agentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError(err)
	}
	result := make([]domain.Agent, 0, len(docs))
	for i := range docs {
		agent, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, *agent)
	}
	return result, nil
}

func (r *MongoRepository) SaveAgent(ctx context.Context, agent *domain.Agent) error {
	doc := toAgentDoc(agent)
	if agent.Version == 0 {
		doc.Version = 1
		if _, err := r.agents.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return classifyMongoError(err)
		}
		agent.Version = 1
		return nil
	}

	update := bson.M{
		"$set": bson.M{
			"name":             doc.Name,
			"email":            doc.Email,
			"role":             doc.Role,
			"status":           doc.Status,
			"group_ids":        doc.GroupIDs,
			"last_assigned_at": doc.LastAssignedAt,
			"avatar_url":       doc.AvatarURL,
			"updated_at":       doc.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	res, err := r.agents.UpdateOne(ctx, bson.M{"_id": agent.ID, "version": agent.Version}, update)
	if err != nil {
		return classifyMongoError(err)
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, r.agents, agent.ID)
	}
	agent.Version++
	return nil
}

func (r *MongoRepository) ListGroups(ctx context.Context) ([]domain.Group, error) {
	cursor, err := r.groups.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classifyMongoError(err)
	}
	defer cursor.Close(ctx)

	var docs []groupDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError(err)
	}
	result := make([]domain.Group, 0, len(docs))
	for _, doc := range docs {
		result = append(result, domain.Group{
			ID:          doc.ID,
			Name:        doc.Name,
			Description: doc.Description,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return result, nil
}

func (r *MongoRepository) SaveGroup(ctx context.Context, group *domain.Group) error {
	_, err := r.groups.UpdateOne(ctx,
		bson.M{"_id": group.ID},
		bson.M{
			"$set":         bson.M{"name": group.Name, "description": group.Description},
			"$setOnInsert": bson.M{"created_at": group.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return classifyMongoError(err)
}

func (r *MongoRepository) missOrConflict(ctx context.Context, coll *mongo.Collection, id string) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return classifyMongoError(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// classifyMongoError maps driver errors onto repository sentinels. Network failures and
// timeouts stay unwrapped so the retry decorator treats them as transient.
func classifyMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return err
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func toMessageDoc(m domain.Message) messageDoc {
	return messageDoc{
		ID:            m.ID,
		AuthorID:      m.AuthorID,
		Type:          string(m.Type),
		Content:       m.Content,
		HasAttachment: m.HasAttachment,
		CreatedAt:     m.CreatedAt,
	}
}

func toTicketDoc(t *domain.Ticket) ticketDoc {
	doc := ticketDoc{
		ID:             t.ID,
		Number:         t.Number,
		Subject:        t.Subject,
		RequesterName:  t.RequesterName,
		RequesterEmail: t.RequesterEmail,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		Category:       t.Category,
		AgentID:        t.AgentID,
		GroupID:        t.GroupID,
		HelpNeeded:     t.HelpNeeded,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		AssignedAt:     t.AssignedAt,
		Version:        t.Version,
	}
	if t.PreviousStatus != nil {
		prev := string(*t.PreviousStatus)
		doc.PreviousStatus = &prev
	}
	if t.Transfer != nil {
		doc.Transfer = &transferDoc{
			TargetAgentID: t.Transfer.TargetAgentID,
			RequestedBy:   t.Transfer.RequestedBy,
			RequestedAt:   t.Transfer.RequestedAt,
		}
	}
	for _, m := range t.Messages {
		doc.Messages = append(doc.Messages, toMessageDoc(m))
	}
	return doc
}

func (d *ticketDoc) toDomain() (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		ID:             d.ID,
		Number:         d.Number,
		Subject:        d.Subject,
		RequesterName:  d.RequesterName,
		RequesterEmail: d.RequesterEmail,
		Category:       d.Category,
		AgentID:        d.AgentID,
		GroupID:        d.GroupID,
		HelpNeeded:     d.HelpNeeded,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		AssignedAt:     d.AssignedAt,
		Version:        d.Version,
	}
	var err error
	if ticket.Status, err = domain.ParseTicketStatus(d.Status); err != nil {
		return nil, corrupt(err)
	}
	if ticket.Priority, err = domain.ParseTicketPriority(d.Priority); err != nil {
		return nil, corrupt(err)
	}
	if d.PreviousStatus != nil {
		prev, err := domain.ParseTicketStatus(*d.PreviousStatus)
		if err != nil {
			return nil, corrupt(err)
		}
		ticket.PreviousStatus = &prev
	}
	if d.Transfer != nil {
		ticket.Transfer = &domain.TransferProposal{
			TargetAgentID: d.Transfer.TargetAgentID,
			RequestedBy:   d.Transfer.RequestedBy,
			RequestedAt:   d.Transfer.RequestedAt,
		}
	}
	for _, m := range d.Messages {
		msgType, err := domain.ParseMessageType(m.Type)
		if err != nil {
			return nil, corrupt(err)
		}
		ticket.Messages = append(ticket.Messages, domain.Message{
			ID:            m.ID,
			TicketID:      d.ID,
			AuthorID:      m.AuthorID,
			Type:          msgType,
			Content:       m.Content,
			HasAttachment: m.HasAttachment,
			CreatedAt:     m.CreatedAt,
		})
	}
	return ticket, nil
}

func toAgentDoc(a *domain.Agent) agentDoc {
	groupIDs := a.GroupIDs
	if groupIDs == nil {
		groupIDs = []string{}
	}
	return agentDoc{
		ID:             a.ID,
		Name:           a.Name,
		Email:          a.Email,
		Role:           string(a.Role),
		Status:         string(a.Status),
		GroupIDs:       groupIDs,
		LastAssignedAt: a.LastAssignedAt,
		AvatarURL:      a.AvatarURL,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		Version:        a.Version,
	}
}

func (d *agentDoc) toDomain() (*domain.Agent, error) {
	agent := &domain.Agent{
		ID:             d.ID,
		Name:           d.Name,
		Email:          d.Email,
		GroupIDs:       d.GroupIDs,
		LastAssignedAt: d.LastAssignedAt,
		AvatarURL:      d.AvatarURL,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		Version:        d.Version,
	}
	var err error
	if agent.Role, err = domain.ParseAgentRole(d.Role); err != nil {
		return nil, corrupt(err)
	}
	if agent.Status, err = domain.ParseAgentStatus(d.Status); err != nil {
		return nil, corrupt(err)
	}
	return agent, nil
}

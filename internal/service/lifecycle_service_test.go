package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/lock"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestCreate(t *testing.T) {
	f := newFixture(t)
	f.group(t, "g")

	ticket, err := f.engine.Lifecycle.Create(f.ctx, CreateTicketInput{
		ID:             "t-1",
		Subject:        "  VPN down ",
		RequesterEmail: "sam@example.com",
		GroupID:        ptr("g"),
		InitialMessage: ptr("cannot connect"),
	})
	require.NoError(t, err)
	assert.Equal(t, "VPN down", ticket.Subject)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityNormal, ticket.Priority)
	assert.Equal(t, int64(1), ticket.Number)
	require.Len(t, ticket.Messages, 1)
	assert.Equal(t, domain.MessageTypeInbound, ticket.Messages[0].Type)
	assert.Len(t, f.events.ofType(events.EventTicketCreated), 1)

	again, err := f.engine.Lifecycle.Create(f.ctx, CreateTicketInput{ID: "t-1", Subject: "VPN down"})
	require.NoError(t, err)
	assert.Equal(t, ticket.Number, again.Number)

	_, err = f.engine.Lifecycle.Create(f.ctx, CreateTicketInput{Subject: " "})
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)

	_, err = f.engine.Lifecycle.Create(f.ctx, CreateTicketInput{Subject: "x", GroupID: ptr("nope")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.engine.Lifecycle.Create(f.ctx, CreateTicketInput{Subject: "x", Priority: "URGENT"})
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
}

func TestResolveReopenRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a")
	ticket := f.ticket(t, nil)
	_, err := f.engine.Assignment.AutoAssign(f.ctx, ticket.ID)
	require.NoError(t, err)

	resolved, err := f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.PreviousStatus)
	assert.Equal(t, domain.TicketStatusInProgress, *resolved.PreviousStatus)

	before := f.load(t, ticket.ID)
	again, err := f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, *again.PreviousStatus)
	assert.Equal(t, before, f.load(t, ticket.ID))

	reopened, err := f.engine.Lifecycle.Reopen(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, reopened.Status)
	assert.Nil(t, reopened.PreviousStatus)
	assert.Nil(t, f.load(t, ticket.ID).PreviousStatus)
}

func TestReopen_RestoresCapturedStatus(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, nil)

	_, err := f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	require.NoError(t, err)
	reopened, err := f.engine.Lifecycle.Reopen(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)
}

func TestReopen_FallsBackToInProgress(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, nil)

	stored := f.load(t, ticket.ID)
	stored.Status = domain.TicketStatusResolved
	stored.PreviousStatus = nil
	require.NoError(t, f.store.SaveTicket(f.ctx, stored))

	reopened, err := f.engine.Lifecycle.Reopen(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, reopened.Status)
}

func TestReopen_UnresolvedTicketIsUntouched(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, nil)
	before := f.load(t, ticket.ID)

	got, err := f.engine.Lifecycle.Reopen(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, got.Status)
	assert.Equal(t, before, f.load(t, ticket.ID))
}

func TestRecordOutgoingMessage(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, nil)

	stored := f.load(t, ticket.ID)
	stored.Status = domain.TicketStatusWaitingCustomer
	require.NoError(t, f.store.SaveTicket(f.ctx, stored))

	replied, err := f.engine.Lifecycle.RecordOutgoingMessage(f.ctx, ticket.ID, "a", "hello", false, true)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, replied.Status)
	assert.True(t, replied.HelpNeeded)

	replied, err = f.engine.Lifecycle.RecordOutgoingMessage(f.ctx, ticket.ID, "a", "sorted", false, false)
	require.NoError(t, err)
	assert.False(t, replied.HelpNeeded)

	_, err = f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	require.NoError(t, err)
	replied, err = f.engine.Lifecycle.RecordOutgoingMessage(f.ctx, ticket.ID, "a", "follow-up", false, false)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, replied.Status)

	assert.Len(t, f.load(t, ticket.ID).Messages, 3)
	assert.Len(t, f.events.ofType(events.EventTicketMessageAdded), 3)

	_, err = f.engine.Lifecycle.RecordOutgoingMessage(f.ctx, ticket.ID, "a", " ", false, false)
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
}

func TestRecordOutgoingMessage_TimestampsStrictlyIncrease(t *testing.T) {
	frozen := clockStart
	f := newFixture(t, withClock(func() time.Time { return frozen }))
	ticket, err := f.engine.Lifecycle.Create(f.ctx, CreateTicketInput{Subject: "x", InitialMessage: ptr("first")})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Lifecycle.RecordOutgoingMessage(f.ctx, ticket.ID, "a", fmt.Sprintf("reply %d", i), false, false)
		require.NoError(t, err)
	}

	messages := f.load(t, ticket.ID).Messages
	require.Len(t, messages, 4)
	for i := 1; i < len(messages); i++ {
		assert.True(t, messages[i].CreatedAt.After(messages[i-1].CreatedAt))
	}
}

func TestRecordInboundOrNote(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, nil)

	got, err := f.engine.Lifecycle.RecordInboundOrNote(f.ctx, ticket.ID, MessageInput{
		Type:    domain.MessageTypeInbound,
		Content: "any update?",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, got.Status)

	got, err = f.engine.Lifecycle.RecordInboundOrNote(f.ctx, ticket.ID, MessageInput{
		Type:     domain.MessageTypeInternalNote,
		AuthorID: ptr("a"),
		Content:  "customer is VIP",
	})
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "a", *got.Messages[1].AuthorID)

	_, err = f.engine.Lifecycle.RecordInboundOrNote(f.ctx, ticket.ID, MessageInput{
		Type:    domain.MessageTypeOutbound,
		Content: "sneaky",
	})
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
}

func TestUpdateMetadataInAnyStatus(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, nil)
	_, err := f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	require.NoError(t, err)

	got, err := f.engine.Lifecycle.UpdatePriority(f.ctx, ticket.ID, domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, got.Priority)
	assert.Equal(t, domain.TicketStatusResolved, got.Status)

	got, err = f.engine.Lifecycle.UpdateCategory(f.ctx, ticket.ID, "hardware")
	require.NoError(t, err)
	assert.Equal(t, "hardware", got.Category)

	version := f.load(t, ticket.ID).Version
	_, err = f.engine.Lifecycle.UpdateCategory(f.ctx, ticket.ID, "hardware")
	require.NoError(t, err)
	assert.Equal(t, version, f.load(t, ticket.ID).Version)

	assert.Len(t, f.events.ofType(events.EventTicketPriorityChanged), 1)
	assert.Len(t, f.events.ofType(events.EventTicketCategoryChanged), 1)

	_, err = f.engine.Lifecycle.UpdatePriority(f.ctx, ticket.ID, "LOW")
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
}

func TestTicketsOwnedBy(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a")
	first := f.ticket(t, nil)
	second := f.ticket(t, nil)
	for _, id := range []string{first.ID, second.ID} {
		_, err := f.engine.Assignment.AutoAssign(f.ctx, id)
		require.NoError(t, err)
	}

	owned, err := f.engine.Lifecycle.TicketsOwnedBy(f.ctx, "a", Page{})
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, first.ID, owned[0].ID)

	owned, err = f.engine.Lifecycle.TicketsOwnedBy(f.ctx, "a", Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, second.ID, owned[0].ID)

	_, err = f.engine.Lifecycle.TicketsOwnedBy(f.ctx, "ghost", Page{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGet_UnknownTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Lifecycle.Get(f.ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

type conflictingRepo struct {
	repository.Repository
}

func (conflictingRepo) SaveTicket(context.Context, *domain.Ticket) error {
	return repository.ErrVersionConflict
}

func TestStaleWriteSurfacesConcurrentModification(t *testing.T) {
	f := newFixture(t, withRepo(func(r repository.Repository) repository.Repository {
		return conflictingRepo{Repository: r}
	}))
	ticket := f.ticket(t, nil)

	_, err := f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
	assert.Equal(t, domain.TicketStatusOpen, f.load(t, ticket.ID).Status)
}

type unavailableRepo struct {
	repository.Repository
}

func (unavailableRepo) LoadTicket(context.Context, string) (*domain.Ticket, error) {
	return nil, fmt.Errorf("LoadTicket after 3 attempts: %w", repository.ErrUnavailable)
}

func TestTransientStoreFailureSurfacesUnavailable(t *testing.T) {
	f := newFixture(t, withRepo(func(r repository.Repository) repository.Repository {
		return unavailableRepo{Repository: r}
	}))
	ticket := f.ticket(t, nil)

	_, err := f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

type refusingLocker struct{}

func (refusingLocker) Acquire(context.Context, string) (lock.Unlock, error) {
	return nil, lock.ErrNotAcquired
}

func TestLockTimeoutSurfacesUnavailable(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Locker = refusingLocker{} })
	ticket := f.ticket(t, nil)

	_, err := f.engine.Lifecycle.Resolve(f.ctx, ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

// rollbackRepo rejects combined ticket+message writes the way an aborted transaction would.
type rollbackRepo struct {
	repository.Repository
}

func (rollbackRepo) SaveTicketWithMessage(context.Context, *domain.Ticket, *domain.Message) error {
	return fmt.Errorf("%w: insert ticket_messages: connection closed", repository.ErrStorage)
}

func TestFailedMessageWriteLeavesTicketUntouched(t *testing.T) {
	f := newFixture(t, withRepo(func(r repository.Repository) repository.Repository {
		return rollbackRepo{Repository: r}
	}))
	ticket := f.ticket(t, nil)
	before := f.load(t, ticket.ID)

	_, err := f.engine.Lifecycle.RecordOutgoingMessage(f.ctx, ticket.ID, "a", "hello", false, true)
	require.Error(t, err)

	stored := f.load(t, ticket.ID)
	assert.Equal(t, before, stored)
	assert.False(t, stored.HelpNeeded)
	assert.Empty(t, stored.Messages)
	assert.Empty(t, f.events.ofType(events.EventTicketMessageAdded))
}

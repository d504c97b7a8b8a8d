package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsByLabel(t *testing.T) {
	m := NewMetrics()

	m.RecordAssignment("auto", AssignmentAssigned)
	m.RecordAssignment("auto", AssignmentAssigned)
	m.RecordAssignment("group", AssignmentQueued)
	m.RecordTransition("OPEN", "IN_PROGRESS")
	m.RecordTransition("RESOLVED", "RESOLVED")
	m.RecordConflict("ticket")
	m.RecordRetry("LoadTicket", 1, errors.New("conn reset"))
	m.RecordReleased(3)
	m.RecordRequest("/api/v1/tickets/:id", "GET", 200, 5*time.Millisecond)
	m.RecordError("/api/v1/tickets/:id", "GET", "NOT_FOUND")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.assignments.WithLabelValues("auto", AssignmentAssigned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("group", AssignmentQueued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("OPEN", "IN_PROGRESS")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.transitions.WithLabelValues("RESOLVED", "RESOLVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("ticket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.repoRetries.WithLabelValues("LoadTicket")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.releasedTickets))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/tickets/:id", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/v1/tickets/:id", "GET", "NOT_FOUND")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAssignment("auto", AssignmentAssigned)
		m.RecordTransition("OPEN", "RESOLVED")
		m.RecordConflict("agent")
		m.RecordRetry("SaveTicket", 2, nil)
		m.RecordReleased(1)
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "INTERNAL_ERROR")
	})
	assert.Nil(t, m.Registry())
}

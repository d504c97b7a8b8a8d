package domain

import "time"

// Group is a named pool of agents used to scope automatic assignment.
type Group struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

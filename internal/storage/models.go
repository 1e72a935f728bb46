package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PlanRecord is a generated plan snapshot together with the profile it was
// generated from. Both payloads are stored as JSON text.
type PlanRecord struct {
	ID          string
	CreatedAt   time.Time
	ProfileJSON string
	PlanJSON    string
}

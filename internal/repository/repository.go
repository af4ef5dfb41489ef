// Package repository implements persistence for attendee records.
//
// Every backend offers the same Store contract. The one method with a
// concurrency contract is MarkCheckedIn: for any record, at most one call
// observes applied == true until the check-in is cleared again.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a record id is inserted twice.
var ErrAlreadyExists = errors.New("record already exists")

// Store is the record store used by the service layer.
type Store interface {
	// Create inserts a fully formed record.
	Create(ctx context.Context, a model.Attendee) error
	// CreateBatch inserts all records or none of them.
	CreateBatch(ctx context.Context, as []model.Attendee) error
	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Attendee, error)
	// List returns every record, newest RegisteredAt first.
	List(ctx context.Context) ([]model.Attendee, error)
	// MarkCheckedIn sets CheckedInAt to max(at, RegisteredAt) if it is
	// still null. It returns the record as stored afterwards and whether
	// this call performed the transition.
	MarkCheckedIn(ctx context.Context, id string, at time.Time) (*model.Attendee, bool, error)
	// SetCheckedIn overwrites CheckedInAt unconditionally; nil clears it.
	SetCheckedIn(ctx context.Context, id string, at *time.Time) (*model.Attendee, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close(ctx context.Context) error
}

// checkInTime keeps CheckedInAt from preceding RegisteredAt when clocks
// disagree between instances.
func checkInTime(at, registeredAt time.Time) time.Time {
	at = at.UTC()
	if at.Before(registeredAt) {
		return registeredAt.UTC()
	}
	return at
}

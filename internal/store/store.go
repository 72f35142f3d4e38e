// Package store persists event definitions and their exceptions.
//
// Two implementations exist: MemoryStore (optionally backed by a JSON file)
// and PostgresStore. Both enforce the same rules: deleting an event deletes
// its exceptions, and at most one exception exists per (event, date).
package store

import (
	"context"
	"errors"

	"famcal/internal/model"
)

var (
	// ErrNotFound is returned when an event or exception id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateException is returned when an exception already exists for
	// the same event and date.
	ErrDuplicateException = errors.New("exception already exists for this date")
)

// Store is the repository boundary used by the HTTP layer.
//
// Every returned value is a copy; callers may mutate it freely.
type Store interface {
	// ListEvents returns all event definitions in creation order.
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	// CreateEvent assigns ID, CreatedAt and UpdatedAt and returns the stored event.
	CreateEvent(ctx context.Context, ev model.Event) (model.Event, error)
	// UpdateEvent replaces the definition with ev.ID. CreatedAt is kept.
	UpdateEvent(ctx context.Context, ev model.Event) (model.Event, error)
	// DeleteEvent removes the event and all of its exceptions.
	DeleteEvent(ctx context.Context, id string) error

	// ListExceptions returns the exceptions of one event, or all exceptions
	// when eventID is empty.
	ListExceptions(ctx context.Context, eventID string) ([]model.Exception, error)
	CreateException(ctx context.Context, ex model.Exception) (model.Exception, error)
	DeleteException(ctx context.Context, eventID, id string) error

	// Snapshot returns every event and exception read under one consistent
	// view, suitable as input for recurrence.ExpandAll.
	Snapshot(ctx context.Context) ([]model.Event, []model.Exception, error)

	Close() error
}

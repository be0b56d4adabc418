// Package provider defines the narrow surface the engine consumes from
// a calendar backend. Concrete clients live in subpackages; the engine
// never imports them.
package provider

import (
	"context"
	"time"

	"calsync/internal/model"
)

// TimeWindow bounds one sync pass.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Client is one side's calendar backend. Implementations own all
// transport concerns, including retry; the engine treats a returned
// error as a transient item or pass failure per its own policy.
type Client interface {
	// CollectionID identifies the calendar the client is bound to.
	CollectionID() string

	// ListEvents reads the full item set within the window, fresh.
	// Series masters carry their exception occurrences; generated
	// occurrences are not expanded.
	ListEvents(ctx context.Context, win TimeWindow) ([]*model.Event, error)

	// CreateEvent persists a new event and returns it with its
	// provider-assigned id.
	CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error)

	// SaveEvent persists in-memory changes of an event previously
	// returned by ListEvents or CreateEvent, including its metadata.
	SaveEvent(ctx context.Context, ev *model.Event) error

	DeleteEvent(ctx context.Context, ev *model.Event) error
}

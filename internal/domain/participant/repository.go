package participant

import "context"

// Repository persists the whole participant collection as one record.
type Repository interface {
	// Load returns the stored collection in insertion order. A missing record
	// is an empty collection, not an error.
	Load(ctx context.Context) ([]Participant, error)

	// Save replaces the stored collection.
	Save(ctx context.Context, participants []Participant) error
}

// EventLog is the bounded, append-only event history.
type EventLog interface {
	// Append stores the event, evicting the oldest entries over capacity.
	Append(ctx context.Context, e Event) error

	// Recent returns up to n of the latest events, oldest first.
	Recent(ctx context.Context, n int) ([]Event, error)
}

package shared

import "context"

// KeyValueStore is the persistence adapter. Values are plain-text serialized
// records; a missing key is reported with ok == false and a nil error.
type KeyValueStore interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error

	// Close releases the underlying connection, if any.
	Close() error
}

// Package records maps the participant collection and the bounded event log
// onto two JSON documents in a KeyValueStore.
package records

import "strings"

// DefaultPrefix keeps records readable by earlier browser sessions.
const DefaultPrefix = "valera_challenge"

// Keys names the two stored records.
type Keys struct {
	Participants string
	Events       string
}

// KeysFor derives record keys from prefix. A blank prefix uses DefaultPrefix.
func KeysFor(prefix string) Keys {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{
		Participants: prefix + "_participants",
		Events:       prefix + "_events",
	}
}

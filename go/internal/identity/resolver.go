// Package identity derives which roster entry belongs to the local client
// when the server does not echo a stable identifier on a broadcast.
//
// The protocol only names the caller explicitly on room:created and
// room:joined. Every later room:updated is triggered by any participant's
// change and carries no "this is you" marker, so membership has to be
// re-derived from the roster itself.
package identity

import "strings"

// RosterEntry is the minimal view of a participant the resolver needs.
type RosterEntry struct {
	ID   string
	Name string
}

// Resolve finds the local participant in roster, evaluated in order with
// first match winning:
//
//  1. exact display-name match,
//  2. containment match (covers server-side de-duplication suffixes),
//  3. the single roster entry absent from previous (covers the race where
//     the room:updated broadcast lands before the direct join reply).
//
// ok is false when no heuristic produces a candidate; the caller keeps the
// identity unknown rather than guessing.
func Resolve(displayName string, roster, previous []RosterEntry) (id string, ok bool) {
	if displayName != "" {
		for _, entry := range roster {
			if entry.Name == displayName {
				return entry.ID, true
			}
		}
		for _, entry := range roster {
			if entry.Name != "" && strings.Contains(entry.Name, displayName) {
				return entry.ID, true
			}
		}
	}

	known := make(map[string]bool, len(previous))
	for _, entry := range previous {
		known[entry.ID] = true
	}
	var added []RosterEntry
	for _, entry := range roster {
		if !known[entry.ID] {
			added = append(added, entry)
		}
	}
	if len(added) == 1 {
		return added[0].ID, true
	}

	return "", false
}

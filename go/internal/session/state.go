// Package session holds the client's authoritative view of the shared
// estimation room: the snapshot store that reduces server events, and the
// hub that fans state changes out to presentation consumers.
package session

import (
	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
	"github.com/scrumdeck/scrumdeck/go/internal/transport"
)

// Role classifies a participant as an estimator or an observer.
type Role string

const (
	RoleVoter     Role = "voter"
	RoleSpectator Role = "spectator"
)

// Participant is one connected identity in the room. Vote is nil while the
// participant has not voted or while the value is withheld pre-reveal;
// HasVoted stays accurate either way.
type Participant struct {
	ID       string
	Name     string
	Emoji    string
	Role     Role
	Vote     *protocol.CardValue
	HasVoted bool
}

// Room is the client-side image of a shared estimation session.
type Room struct {
	ID       string
	Name     string
	OwnerID  string
	Revealed bool
	Deck     protocol.CardDeck
	Roster   []Participant
}

// Participant returns the roster entry with the given id, or nil.
func (r *Room) Participant(id string) *Participant {
	if r == nil {
		return nil
	}
	for i := range r.Roster {
		if r.Roster[i].ID == id {
			return &r.Roster[i]
		}
	}
	return nil
}

// AllVotersReady reports whether every voter-role participant has a vote in.
// Spectators are excluded; a room with no voters is not ready.
func (r *Room) AllVotersReady() bool {
	if r == nil {
		return false
	}
	voters := 0
	for _, p := range r.Roster {
		if p.Role != RoleVoter {
			continue
		}
		voters++
		if !p.HasVoted {
			return false
		}
	}
	return voters > 0
}

func (r *Room) clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Deck.Values = append([]protocol.CardValue(nil), r.Deck.Values...)
	out.Roster = make([]Participant, len(r.Roster))
	for i, p := range r.Roster {
		out.Roster[i] = p
		if p.Vote != nil {
			v := *p.Vote
			out.Roster[i].Vote = &v
		}
	}
	return &out
}

// LocalIdentity is who the client believes it is. ParticipantID is empty
// until the server names us or the resolver finds a match.
type LocalIdentity struct {
	ParticipantID string
	DisplayName   string
	Emoji         string
}

// Resolved reports whether the local participant id is known.
func (li LocalIdentity) Resolved() bool {
	return li.ParticipantID != ""
}

// Snapshot is the combined view handed to presentation consumers. It is a
// value: consumers can hold it without observing later mutations.
type Snapshot struct {
	Room      *Room
	Identity  LocalIdentity
	ConnState transport.State

	// Stale is set while the room survived a reconnect but no fresh
	// room:updated has confirmed it yet.
	Stale bool

	// LastError is the most recent domain or connectivity error suitable
	// for display, empty when none.
	LastError string

	// RevealCountdown is the remaining reveal delay in seconds, or -1 when
	// no countdown is running.
	RevealCountdown int
}

// InRoom reports whether a room is established client-side.
func (s Snapshot) InRoom() bool {
	return s.Room != nil
}

// LocalParticipant returns the roster entry for the local identity, or nil
// while unresolved or absent.
func (s Snapshot) LocalParticipant() *Participant {
	if !s.Identity.Resolved() {
		return nil
	}
	return s.Room.Participant(s.Identity.ParticipantID)
}

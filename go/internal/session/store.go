package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scrumdeck/scrumdeck/go/internal/identity"
	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
	"github.com/scrumdeck/scrumdeck/go/internal/transport"
)

// Store owns the one SessionSnapshot. Every reducer is atomic with respect
// to readers: a consumer never observes a roster from one event combined
// with a revealed flag from another.
type Store struct {
	mu         sync.RWMutex
	snap       Snapshot
	prevRoster []identity.RosterEntry
}

// NewStore creates an empty store in the NoRoom state.
func NewStore() *Store {
	return &Store{
		snap: Snapshot{
			ConnState:       transport.StateDisconnected,
			RevealCountdown: -1,
		},
	}
}

// SetLocalIdentity records the display name and emoji the user will appear
// as. Called when the user creates or joins a room; the participant id stays
// whatever it was (identity persists across reconnect attempts).
func (s *Store) SetLocalIdentity(displayName, emoji string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Identity.DisplayName = displayName
	s.snap.Identity.Emoji = emoji
}

// Apply reduces one server event into the snapshot.
func (s *Store) Apply(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case protocol.RoomCreatedEvent:
		s.replaceRoom(e.Room)
		s.snap.Identity.ParticipantID = e.OwnerID
		s.snap.LastError = ""
		log.Info().Str("room_id", e.Room.ID).Str("participant_id", e.OwnerID).Msg("room created")

	case protocol.RoomJoinedEvent:
		s.replaceRoom(e.Room)
		s.snap.Identity.ParticipantID = e.UserID
		s.snap.LastError = ""
		log.Info().Str("room_id", e.Room.ID).Str("participant_id", e.UserID).Msg("room joined")

	case protocol.RoomUpdatedEvent:
		prev := s.prevRoster
		s.replaceRoom(e.Room)
		// An id confirmed by the server is never replaced by a heuristic;
		// resolution only runs while the identity is still unknown.
		if !s.snap.Identity.Resolved() {
			roster := rosterEntries(s.snap.Room.Roster)
			if id, ok := identity.Resolve(s.snap.Identity.DisplayName, roster, prev); ok {
				s.snap.Identity.ParticipantID = id
				log.Debug().Str("participant_id", id).Msg("local identity resolved from roster")
			}
		}

	case protocol.RoomErrorEvent:
		s.snap.LastError = e.Message
		log.Warn().Str("message", e.Message).Msg("room error")

	case protocol.ErrorEvent:
		s.snap.LastError = e.Message
		log.Warn().Str("message", e.Message).Msg("server error")

	case protocol.RoomRevealedEvent:
		if s.snap.Room != nil {
			s.snap.Room.Revealed = true
		}

	case protocol.RoomResetEvent:
		if s.snap.Room != nil {
			s.snap.Room.Revealed = false
			for i := range s.snap.Room.Roster {
				s.snap.Room.Roster[i].Vote = nil
				s.snap.Room.Roster[i].HasVoted = false
			}
		}

	default:
		// Closed vocabulary upstream; anything else was already dropped by
		// the codec.
		log.Debug().Str("event_type", string(ev.EventType())).Msg("no reducer for event")
	}
}

// replaceRoom swaps the room wholesale with the payload image. The server is
// authoritative for roster, revealed and deck; fields are never merged. The
// previous roster is kept for the identity resolver's new-entry fallback.
func (s *Store) replaceRoom(p protocol.RoomPayload) {
	room := &Room{
		ID:       p.ID,
		Name:     p.Name,
		OwnerID:  p.OwnerID,
		Revealed: p.Revealed,
		Deck:     p.Deck(),
		Roster:   make([]Participant, 0, len(p.Users)),
	}
	if len(room.Deck.Values) == 0 && s.snap.Room != nil {
		// Some server variants omit the deck on updates; keep the one we have.
		room.Deck = s.snap.Room.Deck
	}
	for _, u := range p.Users {
		role := RoleVoter
		if u.Spectator {
			role = RoleSpectator
		}
		participant := Participant{
			ID:       u.ID,
			Name:     u.Name,
			Emoji:    u.Emoji,
			Role:     role,
			HasVoted: u.IsReady || u.Vote != nil,
		}
		if u.Vote != nil {
			v := *u.Vote
			participant.Vote = &v
		}
		room.Roster = append(room.Roster, participant)
	}

	s.prevRoster = rosterEntries(room.Roster)
	s.snap.Room = room
	s.snap.Stale = false
}

func rosterEntries(roster []Participant) []identity.RosterEntry {
	entries := make([]identity.RosterEntry, len(roster))
	for i, p := range roster {
		entries[i] = identity.RosterEntry{ID: p.ID, Name: p.Name}
	}
	return entries
}

// SetConnState records a transport transition. Entering the reconnecting
// state marks the room stale; it stays stale until a fresh room:updated
// arrives. A terminal closure surfaces its error for display.
func (s *Store) SetConnState(state transport.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ConnState = state
	if state == transport.StateReconnecting && s.snap.Room != nil {
		s.snap.Stale = true
	}
	if err != nil && (state == transport.StateClosed || state == transport.StateReconnecting) {
		s.snap.LastError = err.Error()
	}
}

// ClearLocalVote blanks the local participant's vote, mirroring a reset
// optimistically. The next room:updated governs.
func (s *Store) ClearLocalVote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.snap.Room.Participant(s.snap.Identity.ParticipantID)
	if p != nil {
		p.Vote = nil
		p.HasVoted = false
	}
}

// SetCountdown records the remaining reveal delay (-1 when idle).
func (s *Store) SetCountdown(remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RevealCountdown = remaining
}

// ClearError dismisses the surfaced error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = ""
}

// Identity returns the current local identity.
func (s *Store) Identity() LocalIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Identity
}

// ConfirmedVote returns the server-confirmed vote of the local participant,
// or nil while absent or unresolved.
func (s *Store) ConfirmedVote() *protocol.CardValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.snap.Room.Participant(s.snap.Identity.ParticipantID)
	if p == nil || p.Vote == nil {
		return nil
	}
	v := *p.Vote
	return &v
}

// Snapshot returns a deep copy of the current state with the reveal
// invariant enforced: while revealed is false, other participants' vote
// values are withheld (HasVoted still tells who is ready). The local
// participant's own vote is always visible.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	out.Room = s.snap.Room.clone()
	if out.Room != nil && !out.Room.Revealed {
		for i := range out.Room.Roster {
			if out.Room.Roster[i].ID != s.snap.Identity.ParticipantID {
				out.Room.Roster[i].Vote = nil
			}
		}
	}
	return out
}

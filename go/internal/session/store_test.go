package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
	"github.com/scrumdeck/scrumdeck/go/internal/transport"
)

func vote(v protocol.CardValue) *protocol.CardValue {
	return &v
}

func roomPayload(revealed bool, users ...protocol.UserPayload) protocol.RoomPayload {
	return protocol.RoomPayload{
		ID:       "R1",
		Name:     "Sprint 12",
		OwnerID:  "u1",
		Revealed: revealed,
		Cards:    []protocol.CardValue{protocol.NumberCard(1), protocol.NumberCard(2), protocol.UnknownCard()},
		Users:    users,
	}
}

func TestStore_RoomCreatedEstablishesRoomAndIdentity(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Alice", "🦊")

	s.Apply(protocol.RoomCreatedEvent{
		Room:    roomPayload(false, protocol.UserPayload{ID: "u1", Name: "Alice"}),
		OwnerID: "u1",
	})

	snap := s.Snapshot()
	require.True(t, snap.InRoom())
	require.Equal(t, "R1", snap.Room.ID)
	require.Equal(t, "u1", snap.Identity.ParticipantID)
	require.Equal(t, "Alice", snap.Identity.DisplayName)
	require.Empty(t, snap.LastError)
}

func TestStore_UpdatedReplacesFieldsWholesale(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Alice", "")
	s.Apply(protocol.RoomCreatedEvent{
		Room:    roomPayload(false, protocol.UserPayload{ID: "u1", Name: "Alice"}),
		OwnerID: "u1",
	})

	// The update carries both a new roster and a new revealed flag; readers
	// must never see one without the other.
	s.Apply(protocol.RoomUpdatedEvent{
		Room: roomPayload(true,
			protocol.UserPayload{ID: "u1", Name: "Alice", Vote: vote(protocol.NumberCard(2)), IsReady: true},
			protocol.UserPayload{ID: "u2", Name: "Bob", Vote: vote(protocol.NumberCard(1)), IsReady: true},
		),
	})

	snap := s.Snapshot()
	require.True(t, snap.Room.Revealed)
	require.Len(t, snap.Room.Roster, 2)
	require.NotNil(t, snap.Room.Roster[0].Vote)
	require.NotNil(t, snap.Room.Roster[1].Vote)
}

func TestStore_MasksOtherVotesWhileHidden(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Alice", "")
	s.Apply(protocol.RoomCreatedEvent{
		Room:    roomPayload(false, protocol.UserPayload{ID: "u1", Name: "Alice"}),
		OwnerID: "u1",
	})
	s.Apply(protocol.RoomUpdatedEvent{
		Room: roomPayload(false,
			protocol.UserPayload{ID: "u1", Name: "Alice", Vote: vote(protocol.NumberCard(2)), IsReady: true},
			// A server that leaks values pre-reveal is still masked client-side.
			protocol.UserPayload{ID: "u2", Name: "Bob", Vote: vote(protocol.NumberCard(1)), IsReady: true},
		),
	})

	snap := s.Snapshot()
	local := snap.Room.Participant("u1")
	other := snap.Room.Participant("u2")
	require.NotNil(t, local.Vote, "own vote is always visible")
	require.Nil(t, other.Vote, "other votes stay hidden until reveal")
	require.True(t, other.HasVoted, "readiness is public")
}

func TestStore_IdentityResolvedFromBroadcast(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Bob", "")

	// The broadcast lands before any direct reply names us.
	s.Apply(protocol.RoomUpdatedEvent{
		Room: roomPayload(false,
			protocol.UserPayload{ID: "u1", Name: "Alice"},
			protocol.UserPayload{ID: "u2", Name: "Bob"},
		),
	})

	require.Equal(t, "u2", s.Identity().ParticipantID)
}

func TestStore_HeuristicNeverOverridesConfirmedID(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Bob", "")
	s.Apply(protocol.RoomJoinedEvent{
		Room:   roomPayload(false, protocol.UserPayload{ID: "u9", Name: "Bob (2)"}),
		UserID: "u9",
	})

	// A roster with an exact-name candidate must not displace the id the
	// server assigned explicitly.
	s.Apply(protocol.RoomUpdatedEvent{
		Room: roomPayload(false,
			protocol.UserPayload{ID: "u2", Name: "Bob"},
			protocol.UserPayload{ID: "u9", Name: "Bob (2)"},
		),
	})

	require.Equal(t, "u9", s.Identity().ParticipantID)
}

func TestStore_UnresolvedIdentityStaysUnknown(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Zoe", "")
	s.Apply(protocol.RoomUpdatedEvent{
		Room: roomPayload(false,
			protocol.UserPayload{ID: "u1", Name: "Alice"},
			protocol.UserPayload{ID: "u2", Name: "Bob"},
		),
	})

	snap := s.Snapshot()
	require.False(t, snap.Identity.Resolved())
	require.Nil(t, snap.LocalParticipant())
}

func TestStore_DomainErrorDoesNotTearDownRoom(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Alice", "")
	s.Apply(protocol.RoomCreatedEvent{
		Room:    roomPayload(false, protocol.UserPayload{ID: "u1", Name: "Alice"}),
		OwnerID: "u1",
	})

	s.Apply(protocol.RoomErrorEvent{Message: "name taken"})

	snap := s.Snapshot()
	require.True(t, snap.InRoom())
	require.Equal(t, "name taken", snap.LastError)

	s.ClearError()
	require.Empty(t, s.Snapshot().LastError)
}

func TestStore_ResetClearsVotesAndRevealFlag(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Alice", "")
	s.Apply(protocol.RoomCreatedEvent{
		Room: roomPayload(true,
			protocol.UserPayload{ID: "u1", Name: "Alice", Vote: vote(protocol.NumberCard(2)), IsReady: true},
		),
		OwnerID: "u1",
	})

	s.Apply(protocol.RoomResetEvent{})

	snap := s.Snapshot()
	require.False(t, snap.Room.Revealed)
	require.Nil(t, snap.Room.Roster[0].Vote)
	require.False(t, snap.Room.Roster[0].HasVoted)
}

func TestStore_ReconnectMarksRoomStale(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Alice", "")
	s.Apply(protocol.RoomCreatedEvent{
		Room:    roomPayload(false, protocol.UserPayload{ID: "u1", Name: "Alice"}),
		OwnerID: "u1",
	})

	s.SetConnState(transport.StateReconnecting, errors.New("connection lost"))

	snap := s.Snapshot()
	require.True(t, snap.InRoom(), "room survives a reconnect")
	require.Equal(t, "u1", snap.Identity.ParticipantID, "identity survives a reconnect")
	require.True(t, snap.Stale)
	require.NotEmpty(t, snap.LastError)

	// The next authoritative update freshens the snapshot.
	s.SetConnState(transport.StateOpen, nil)
	require.True(t, s.Snapshot().Stale, "stale until a fresh room:updated arrives")

	s.Apply(protocol.RoomUpdatedEvent{
		Room: roomPayload(false, protocol.UserPayload{ID: "u1", Name: "Alice"}),
	})
	require.False(t, s.Snapshot().Stale)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.SetLocalIdentity("Alice", "")
	s.Apply(protocol.RoomCreatedEvent{
		Room:    roomPayload(false, protocol.UserPayload{ID: "u1", Name: "Alice"}),
		OwnerID: "u1",
	})

	snap := s.Snapshot()
	snap.Room.Name = "mutated"
	snap.Room.Roster[0].Name = "mutated"

	fresh := s.Snapshot()
	require.Equal(t, "Sprint 12", fresh.Room.Name)
	require.Equal(t, "Alice", fresh.Room.Roster[0].Name)
}

func TestRoom_AllVotersReadyExcludesSpectators(t *testing.T) {
	r := &Room{
		Roster: []Participant{
			{ID: "u1", Role: RoleVoter, HasVoted: true},
			{ID: "u2", Role: RoleSpectator, HasVoted: false},
		},
	}
	require.True(t, r.AllVotersReady())

	r.Roster = append(r.Roster, Participant{ID: "u3", Role: RoleVoter})
	require.False(t, r.AllVotersReady())

	empty := &Room{Roster: []Participant{{ID: "u2", Role: RoleSpectator}}}
	require.False(t, empty.AllVotersReady(), "a room with no voters is never ready")
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	h := NewHub()

	var first, second []string
	unsubFirst := h.Subscribe(func(s Snapshot) { first = append(first, s.LastError) })
	h.Publish(Snapshot{LastError: "one"})

	h.Subscribe(func(s Snapshot) { second = append(second, s.LastError) })
	h.Publish(Snapshot{LastError: "two"})

	unsubFirst()
	h.Publish(Snapshot{LastError: "three"})

	require.Equal(t, []string{"one", "two"}, first, "no replay, no delivery after unsubscribe")
	require.Equal(t, []string{"two", "three"}, second)
}

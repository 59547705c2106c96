package devserver_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/scrumdeck/scrumdeck/go/clients/roomapi"
	"github.com/scrumdeck/scrumdeck/go/internal/devserver"
	"github.com/scrumdeck/scrumdeck/go/internal/engine"
	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
	"github.com/scrumdeck/scrumdeck/go/internal/session"
	"github.com/scrumdeck/scrumdeck/go/internal/transport"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func startServer(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	srv := devserver.NewServer(devserver.DefaultConfig())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// dialEngine connects a full client stack (adapter + engine) to the test
// server. The engine clock is faked so reveal countdowns can be driven.
func dialEngine(t *testing.T, ts *httptest.Server) (*engine.Engine, *clockwork.FakeClock) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	adapter := transport.NewAdapter(transport.DefaultConfig(url))
	fc := clockwork.NewFakeClock()
	eng := engine.New(adapter, engine.WithClock(fc))
	t.Cleanup(eng.Close)
	require.NoError(t, eng.Connect(context.Background()))
	return eng, fc
}

func waitSnap(t *testing.T, eng *engine.Engine, cond func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(eng.Snapshot())
	}, waitFor, tick)
	return eng.Snapshot()
}

func advanceCountdown(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	for i := 0; i < 3; i++ {
		fc.BlockUntil(1)
		fc.Advance(time.Second)
	}
}

func TestIntegration_FullRound(t *testing.T) {
	_, ts := startServer(t)

	owner, ownerClock := dialEngine(t, ts)
	require.NoError(t, owner.CreateRoom("Sprint 12", "Alice", protocol.DefaultDeck(), "🦊"))

	ownerSnap := waitSnap(t, owner, func(s session.Snapshot) bool {
		return s.InRoom() && s.Identity.Resolved()
	})
	roomID := ownerSnap.Room.ID
	require.Equal(t, ownerSnap.Identity.ParticipantID, ownerSnap.Room.OwnerID)

	guest, _ := dialEngine(t, ts)
	require.NoError(t, guest.JoinRoom(roomID, "Bob", "🐝"))
	waitSnap(t, guest, func(s session.Snapshot) bool {
		return s.InRoom() && s.Identity.Resolved() && len(s.Room.Roster) == 2
	})
	waitSnap(t, owner, func(s session.Snapshot) bool {
		return len(s.Room.Roster) == 2
	})

	// The guest votes; the owner learns they are ready but not what they
	// picked.
	require.NoError(t, guest.CastVote(protocol.NumberCard(5)))
	ownerSnap = waitSnap(t, owner, func(s session.Snapshot) bool {
		p := findByName(s, "Bob")
		return p != nil && p.HasVoted
	})
	require.Nil(t, findByName(ownerSnap, "Bob").Vote, "guest vote is masked pre-reveal")

	require.NoError(t, owner.CastVote(protocol.NumberCard(8)))
	ownerSnap = waitSnap(t, owner, func(s session.Snapshot) bool {
		return s.Room.AllVotersReady()
	})
	require.True(t, engine.RevealEnabled(ownerSnap))

	// The guest cannot reveal; only the owner can.
	require.ErrorIs(t, guest.Reveal(), engine.ErrNotOwner)

	require.NoError(t, owner.Reveal())
	advanceCountdown(t, ownerClock)

	guestSnap := waitSnap(t, guest, func(s session.Snapshot) bool {
		return s.Room.Revealed && findByName(s, "Alice") != nil && findByName(s, "Alice").Vote != nil
	})
	require.True(t, findByName(guestSnap, "Alice").Vote.Equal(protocol.NumberCard(8)))
	ownerSnap = waitSnap(t, owner, func(s session.Snapshot) bool {
		p := findByName(s, "Bob")
		return s.Room.Revealed && p != nil && p.Vote != nil
	})
	require.True(t, findByName(ownerSnap, "Bob").Vote.Equal(protocol.NumberCard(5)))

	// Voting into a revealed round is rejected client-side.
	require.ErrorIs(t, guest.CastVote(protocol.NumberCard(13)), engine.ErrVotesRevealed)

	// Reset opens the next round for everyone.
	require.NoError(t, owner.ResetVotes())
	waitSnap(t, guest, func(s session.Snapshot) bool {
		if s.Room.Revealed {
			return false
		}
		for _, p := range s.Room.Roster {
			if p.HasVoted {
				return false
			}
		}
		return true
	})
}

func TestIntegration_JoinUnknownRoom(t *testing.T) {
	_, ts := startServer(t)
	eng, _ := dialEngine(t, ts)

	require.NoError(t, eng.JoinRoom("nope", "Bob", ""))
	snap := waitSnap(t, eng, func(s session.Snapshot) bool {
		return s.LastError != ""
	})
	require.Equal(t, "room not found", snap.LastError)
	require.False(t, snap.InRoom())
}

func TestIntegration_DuplicateNamesAreDeduplicated(t *testing.T) {
	_, ts := startServer(t)

	owner, _ := dialEngine(t, ts)
	require.NoError(t, owner.CreateRoom("Sprint 12", "Bob", protocol.DefaultDeck(), ""))
	roomID := waitSnap(t, owner, func(s session.Snapshot) bool { return s.InRoom() }).Room.ID

	guest, _ := dialEngine(t, ts)
	require.NoError(t, guest.JoinRoom(roomID, "Bob", ""))

	snap := waitSnap(t, guest, func(s session.Snapshot) bool {
		return s.InRoom() && s.Identity.Resolved()
	})
	p := snap.LocalParticipant()
	require.NotNil(t, p)
	require.Equal(t, "Bob (2)", p.Name, "original name stays a substring")
	require.NotEqual(t, snap.Room.OwnerID, p.ID)
}

func TestIntegration_SpectatorExcludedFromReadiness(t *testing.T) {
	_, ts := startServer(t)

	owner, _ := dialEngine(t, ts)
	require.NoError(t, owner.CreateRoom("Sprint 12", "Alice", protocol.DefaultDeck(), ""))
	roomID := waitSnap(t, owner, func(s session.Snapshot) bool { return s.InRoom() }).Room.ID

	guest, _ := dialEngine(t, ts)
	require.NoError(t, guest.JoinRoom(roomID, "Bob", ""))
	waitSnap(t, guest, func(s session.Snapshot) bool { return s.InRoom() && s.Identity.Resolved() })

	require.NoError(t, guest.SetSpectator(true))
	waitSnap(t, owner, func(s session.Snapshot) bool {
		p := findByName(s, "Bob")
		return p != nil && p.Role == session.RoleSpectator
	})

	// With the guest observing, the owner's vote alone completes the round.
	require.NoError(t, owner.CastVote(protocol.NumberCard(3)))
	snap := waitSnap(t, owner, func(s session.Snapshot) bool {
		return s.Room.AllVotersReady()
	})
	require.True(t, engine.RevealEnabled(snap))
}

func TestIntegration_RoomLookup(t *testing.T) {
	_, ts := startServer(t)

	owner, _ := dialEngine(t, ts)
	require.NoError(t, owner.CreateRoom("Sprint 12", "Alice", protocol.DefaultDeck(), ""))
	roomID := waitSnap(t, owner, func(s session.Snapshot) bool { return s.InRoom() }).Room.ID
	require.NoError(t, owner.CastVote(protocol.NumberCard(5)))

	lookup := roomapi.NewClient(ts.URL)

	room, err := lookup.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.NotNil(t, room)
	require.Equal(t, "Sprint 12", room.Name)
	require.Len(t, room.Users, 1)
	require.Nil(t, room.Users[0].Vote, "lookup never leaks hidden votes")

	missing, err := lookup.GetRoom(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestIntegration_DisconnectPrunesRoomAndRoster(t *testing.T) {
	srv, ts := startServer(t)

	owner, _ := dialEngine(t, ts)
	require.NoError(t, owner.CreateRoom("Sprint 12", "Alice", protocol.DefaultDeck(), ""))
	roomID := waitSnap(t, owner, func(s session.Snapshot) bool { return s.InRoom() }).Room.ID

	guest, _ := dialEngine(t, ts)
	require.NoError(t, guest.JoinRoom(roomID, "Bob", ""))
	waitSnap(t, owner, func(s session.Snapshot) bool { return len(s.Room.Roster) == 2 })

	guest.Close()
	waitSnap(t, owner, func(s session.Snapshot) bool { return len(s.Room.Roster) == 1 })

	owner.Close()
	require.Eventually(t, func() bool {
		return srv.RoomCount() == 0
	}, waitFor, tick)
}

func findByName(snap session.Snapshot, name string) *session.Participant {
	for i := range snap.Room.Roster {
		if snap.Room.Roster[i].Name == name {
			return &snap.Room.Roster[i]
		}
	}
	return nil
}

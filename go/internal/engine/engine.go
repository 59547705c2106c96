// Package engine is the session synchronization engine: it ties the
// transport, codec, identity resolution, state store and reveal sequencing
// together behind one action surface. An Engine is constructed explicitly
// with an injected transport; there is no ambient singleton.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
	"github.com/scrumdeck/scrumdeck/go/internal/session"
	"github.com/scrumdeck/scrumdeck/go/internal/transport"
)

// Transport is what the engine needs from the connection layer. Satisfied by
// *transport.Adapter.
type Transport interface {
	Connect(ctx context.Context) error
	Send(payload []byte) error
	OnFrame(fn func(payload []byte)) func()
	OnStateChange(fn func(state transport.State, err error)) func()
	Close()
}

// Precondition errors, rejected at the action boundary before anything is
// sent over the wire.
var (
	ErrClosed            = errors.New("engine closed")
	ErrNoRoom            = errors.New("no active room")
	ErrVotesRevealed     = errors.New("votes already revealed")
	ErrNotInDeck         = errors.New("vote value is not in the active deck")
	ErrNotOwner          = errors.New("only the room owner can reveal")
	ErrNotAllVotersReady = errors.New("every voter must vote before reveal")
)

// Engine owns one room session over one transport. All reducers run on a
// single goroutine per source and mutate state under one mutex, so two
// inbound events are always fully processed one at a time, in receipt order.
type Engine struct {
	transport  Transport
	store      *session.Store
	hub        *session.Hub
	clock      clockwork.Clock
	instanceID string

	mu            sync.Mutex
	optimistic    *protocol.CardValue
	lastConfirmed *protocol.CardValue
	countdownStop chan struct{}
	closed        bool
	unsubFrame    func()
	unsubState    func()

	// pubCh decouples subscriber callbacks from reducer execution while
	// preserving publish order.
	pubCh chan session.Snapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the countdown clock. In production the real clock is
// used; tests inject a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an engine bound to the given transport. Frame and state
// handlers are registered immediately; call Connect to open the connection.
func New(t Transport, opts ...Option) *Engine {
	e := &Engine{
		transport:  t,
		store:      session.NewStore(),
		hub:        session.NewHub(),
		clock:      clockwork.NewRealClock(),
		instanceID: uuid.New().String()[:8],
		pubCh:      make(chan session.Snapshot, 64),
	}
	for _, opt := range opts {
		opt(e)
	}

	go e.publishLoop()
	e.unsubFrame = t.OnFrame(e.handleFrame)
	e.unsubState = t.OnStateChange(e.handleStateChange)

	log.Debug().Str("instance", e.instanceID).Msg("engine created")
	return e
}

// Connect opens the transport. Idempotent while a connection is pending or
// open.
func (e *Engine) Connect(ctx context.Context) error {
	return e.transport.Connect(ctx)
}

// Close tears the engine down: the pending countdown is interrupted without
// firing, the transport stops reconnecting, and no further snapshots are
// published.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.countdownStop != nil {
		close(e.countdownStop)
		e.countdownStop = nil
	}
	e.mu.Unlock()

	e.unsubFrame()
	e.unsubState()
	e.transport.Close()
	close(e.pubCh)
	log.Debug().Str("instance", e.instanceID).Msg("engine closed")
}

// Subscribe registers a presentation consumer and returns its unsubscribe
// function. Snapshots already published are not replayed.
func (e *Engine) Subscribe(fn func(session.Snapshot)) func() {
	return e.hub.Subscribe(fn)
}

// Snapshot returns the current combined view.
func (e *Engine) Snapshot() session.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// CreateRoom asks the server to open a room with the caller as owner.
func (e *Engine) CreateRoom(roomName, userName string, deck protocol.CardDeck, emoji string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.store.SetLocalIdentity(userName, emoji)
	err := e.send(protocol.CreateRoomCommand{
		RoomName:   roomName,
		UserName:   userName,
		OwnerEmoji: emoji,
		Cards:      deck.Values,
	})
	if err != nil {
		return err
	}
	e.queuePublishLocked()
	return nil
}

// JoinRoom asks the server to add the caller to an existing room.
func (e *Engine) JoinRoom(roomID, userName, emoji string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.store.SetLocalIdentity(userName, emoji)
	err := e.send(protocol.JoinRoomCommand{
		RoomID:   roomID,
		UserName: userName,
		Emoji:    emoji,
	})
	if err != nil {
		return err
	}
	e.queuePublishLocked()
	return nil
}

// CastVote submits a hidden vote. The value shows up locally at once
// (optimistic) and is reconciled against the next roster the server sends.
// Voting after a reveal is rejected here and never reaches the wire.
func (e *Engine) CastVote(v protocol.CardValue) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	snap := e.store.Snapshot()
	if !snap.InRoom() {
		return ErrNoRoom
	}
	if snap.Room.Revealed {
		return ErrVotesRevealed
	}
	if len(snap.Room.Deck.Values) > 0 && !snap.Room.Deck.Contains(v) {
		return ErrNotInDeck
	}
	if err := e.send(protocol.VoteCommand{Vote: v}); err != nil {
		return err
	}
	vote := v
	e.optimistic = &vote
	e.queuePublishLocked()
	return nil
}

// ResetVotes clears the round. The local vote is blanked optimistically; the
// authoritative roster arrives with the next room:updated.
func (e *Engine) ResetVotes() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.store.Snapshot().InRoom() {
		return ErrNoRoom
	}
	if err := e.send(protocol.ResetCommand{}); err != nil {
		return err
	}
	e.optimistic = nil
	e.lastConfirmed = nil
	e.store.ClearLocalVote()
	e.queuePublishLocked()
	return nil
}

// SetSpectator toggles the caller between voter and spectator roles.
func (e *Engine) SetSpectator(spectator bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.store.Snapshot().InRoom() {
		return ErrNoRoom
	}
	return e.send(protocol.SpectateCommand{Spectator: spectator})
}

// DismissError clears the transient error surfaced on the snapshot.
func (e *Engine) DismissError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.store.ClearError()
	e.queuePublishLocked()
}

// send encodes and writes a command. Failures are synchronous; nothing is
// ever silently dropped.
func (e *Engine) send(cmd protocol.Command) error {
	raw, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", cmd.CommandType(), err)
	}
	if err := e.transport.Send(raw); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.CommandType(), err)
	}
	log.Debug().Str("command", string(cmd.CommandType())).Str("instance", e.instanceID).Msg("command sent")
	return nil
}

// handleFrame runs on the transport read goroutine, one frame at a time.
func (e *Engine) handleFrame(raw []byte) {
	ev, err := protocol.DecodeEvent(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Debug().Err(err).Msg("ignoring unrecognized event type")
		} else {
			log.Warn().Err(err).Msg("dropping malformed frame")
		}
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.store.Apply(ev)
	e.reconcileLocked()
	e.queuePublishLocked()
}

// handleStateChange mirrors transport transitions into the snapshot. The
// room and identity survive a reconnect; the store marks the room stale
// until a fresh room:updated confirms it.
func (e *Engine) handleStateChange(state transport.State, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.store.SetConnState(state, err)
	e.queuePublishLocked()
}

// reconcileLocked applies the optimistic-vs-confirmed rule: whenever the
// server-confirmed vote changes, it wins and the optimistic value is
// discarded. The optimistic layer only masks the round trip between a click
// and the next room:updated.
func (e *Engine) reconcileLocked() {
	confirmed := e.store.ConfirmedVote()
	if votesEqual(confirmed, e.lastConfirmed) {
		return
	}
	e.lastConfirmed = confirmed
	if e.optimistic != nil && !votesEqual(confirmed, e.optimistic) {
		log.Debug().Str("instance", e.instanceID).Msg("confirmed vote differs, discarding optimistic value")
	}
	e.optimistic = nil
}

// viewLocked builds the consumer-facing snapshot: the store view with the
// optimistic vote layered over the local roster entry while no confirmed
// value exists.
func (e *Engine) viewLocked() session.Snapshot {
	snap := e.store.Snapshot()
	if e.optimistic != nil && snap.InRoom() && !snap.Room.Revealed {
		if p := snap.LocalParticipant(); p != nil && p.Vote == nil {
			vote := *e.optimistic
			p.Vote = &vote
			p.HasVoted = true
		}
	}
	return snap
}

func (e *Engine) queuePublishLocked() {
	select {
	case e.pubCh <- e.viewLocked():
	default:
		log.Warn().Str("instance", e.instanceID).Msg("publish channel full, dropping snapshot")
	}
}

func (e *Engine) publishLoop() {
	for snap := range e.pubCh {
		e.hub.Publish(snap)
	}
}

func votesEqual(a, b *protocol.CardValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// RevealEnabled reports whether the reveal affordance should be offered for
// the given snapshot: votes hidden, caller is the owner, and every voter has
// a vote in.
func RevealEnabled(snap session.Snapshot) bool {
	if !snap.InRoom() || snap.Room.Revealed {
		return false
	}
	if !snap.Identity.Resolved() || snap.Identity.ParticipantID != snap.Room.OwnerID {
		return false
	}
	return snap.Room.AllVotersReady()
}

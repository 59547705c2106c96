// Package transport owns the single WebSocket connection between the session
// engine and the room server: dialing, frame delivery, and the reconnection
// policy applied after an abnormal close.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State describes the connection lifecycle as observed by consumers.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

var (
	// ErrNotConnected is returned synchronously when Send is attempted while
	// the transport is not open. Commands are never silently dropped.
	ErrNotConnected = errors.New("transport not connected")

	// ErrClosed is returned once Close has been called; the adapter never
	// dials again after that.
	ErrClosed = errors.New("transport closed")
)

// Config holds connection settings for the adapter.
type Config struct {
	URL              string
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	BaseRetryDelay   time.Duration
	MaxRetryAttempts int
}

// DefaultConfig returns the connection settings used in production. The
// retry policy is delay = BaseRetryDelay x attempt, capped at
// MaxRetryAttempts before the adapter gives up.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		DialTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   64 * 1024,
		BaseRetryDelay:   2 * time.Second,
		MaxRetryAttempts: 5,
	}
}

// Adapter maintains exactly one WebSocket connection. Inbound frames are
// handed to frame handlers unparsed and in receipt order; the adapter never
// inspects payload semantics.
type Adapter struct {
	cfg    Config
	clock  clockwork.Clock
	dialer *websocket.Dialer

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	closed        bool
	pending       chan struct{} // non-nil while a Connect is in flight
	pendingErr    error
	closeCh       chan struct{}
	frameHandlers map[int]func([]byte)
	stateHandlers map[int]func(State, error)
	nextHandlerID int

	writeMu sync.Mutex

	// stateCh serializes state notifications so observers see transitions
	// in the order they happened.
	stateCh chan stateChange
}

type stateChange struct {
	state State
	err   error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock overrides the clock used for retry delays. In production the
// real clock is used; tests inject a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(a *Adapter) { a.clock = c }
}

// NewAdapter creates an adapter for the given config. No connection is made
// until Connect is called.
func NewAdapter(cfg Config, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		},
		state:         StateDisconnected,
		closeCh:       make(chan struct{}),
		frameHandlers: make(map[int]func([]byte)),
		stateHandlers: make(map[int]func(State, error)),
		stateCh:       make(chan stateChange, 32),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.notifyLoop()
	return a
}

// notifyLoop fans state transitions out to observers, one at a time. It
// exits when the adapter reaches its terminal state and stateCh is closed.
func (a *Adapter) notifyLoop() {
	for change := range a.stateCh {
		a.mu.Lock()
		handlers := make([]func(State, error), 0, len(a.stateHandlers))
		for _, fn := range a.stateHandlers {
			handlers = append(handlers, fn)
		}
		a.mu.Unlock()

		for _, fn := range handlers {
			fn(change.state, change.err)
		}
	}
}

// State returns the current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Connect dials the server. It is idempotent while a connection is pending
// or open: concurrent callers share the outcome of the in-flight dial.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state == StateOpen || a.state == StateReconnecting {
		// Open, or the reconnect loop already owns the dial.
		a.mu.Unlock()
		return nil
	}
	if a.pending != nil {
		pending := a.pending
		a.mu.Unlock()
		select {
		case <-pending:
		case <-ctx.Done():
			return ctx.Err()
		}
		a.mu.Lock()
		err := a.pendingErr
		a.mu.Unlock()
		return err
	}

	pending := make(chan struct{})
	a.pending = pending
	a.setStateLocked(StateConnecting, nil)
	a.mu.Unlock()

	conn, err := a.dial(ctx)

	a.mu.Lock()
	a.pendingErr = err
	a.pending = nil
	close(pending)
	if err != nil {
		if !a.closed {
			a.setStateLocked(StateDisconnected, err)
		}
		a.mu.Unlock()
		return err
	}
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	a.conn = conn
	a.setStateLocked(StateOpen, nil)
	a.mu.Unlock()

	go a.readLoop(conn)

	log.Info().Str("url", a.cfg.URL).Msg("transport connected")
	return nil
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := a.dialer.DialContext(ctx, a.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", a.cfg.URL, err)
	}
	conn.SetReadLimit(a.cfg.MaxMessageSize)
	return conn, nil
}

// Send writes one frame. It fails synchronously with ErrNotConnected while
// the transport is not open.
func (a *Adapter) Send(payload []byte) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state != StateOpen || a.conn == nil {
		a.mu.Unlock()
		return ErrNotConnected
	}
	conn := a.conn
	a.mu.Unlock()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// OnFrame registers a handler for inbound frames and returns its
// unsubscribe function. Handlers run on the read goroutine, one frame at a
// time, in receipt order. Frames delivered before registration are not
// replayed.
func (a *Adapter) OnFrame(fn func(payload []byte)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandlerID
	a.nextHandlerID++
	a.frameHandlers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.frameHandlers, id)
	}
}

// OnStateChange registers a handler for connection-state transitions and
// returns its unsubscribe function. The error argument is non-nil for
// transitions caused by a failure, including the terminal one after the
// retry budget is exhausted.
func (a *Adapter) OnStateChange(fn func(state State, err error)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandlerID
	a.nextHandlerID++
	a.stateHandlers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.stateHandlers, id)
	}
}

// Close tears the connection down and stops any reconnection attempts. The
// adapter is terminal after Close.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.closeCh)
	conn := a.conn
	a.conn = nil
	a.setStateLocked(StateClosed, nil)
	a.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	log.Info().Msg("transport closed")
}

// readLoop reads frames until the connection drops, then hands control to
// the reconnect loop unless Close was called.
func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			if a.closed {
				a.mu.Unlock()
				return
			}
			a.conn = nil
			a.mu.Unlock()

			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("transport connection lost")
			} else {
				log.Debug().Err(err).Msg("transport connection closed by peer")
			}
			a.reconnectLoop(err)
			return
		}
		a.dispatchFrame(payload)
	}
}

// reconnectLoop retries the dial with a linearly growing delay until it
// succeeds, Close is called, or the attempt budget runs out.
func (a *Adapter) reconnectLoop(cause error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.setStateLocked(StateReconnecting, cause)
	a.mu.Unlock()

	for attempt := 1; attempt <= a.cfg.MaxRetryAttempts; attempt++ {
		delay := a.cfg.BaseRetryDelay * time.Duration(attempt)
		log.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transport reconnecting")

		select {
		case <-a.clock.After(delay):
		case <-a.closeCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.DialTimeout)
		conn, err := a.dial(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("transport reconnect attempt failed")
			continue
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			conn.Close()
			return
		}
		a.conn = conn
		a.setStateLocked(StateOpen, nil)
		a.mu.Unlock()

		log.Info().Int("attempt", attempt).Msg("transport reconnected")
		go a.readLoop(conn)
		return
	}

	err := fmt.Errorf("gave up after %d reconnect attempts: %w", a.cfg.MaxRetryAttempts, cause)
	log.Error().Err(err).Msg("transport giving up")

	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.closeCh)
		a.setStateLocked(StateClosed, err)
	}
	a.mu.Unlock()
}

func (a *Adapter) dispatchFrame(payload []byte) {
	a.mu.Lock()
	handlers := make([]func([]byte), 0, len(a.frameHandlers))
	for _, fn := range a.frameHandlers {
		handlers = append(handlers, fn)
	}
	a.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

// setStateLocked records a transition and queues the notification. Callers
// must hold a.mu. The terminal StateClosed transition also closes stateCh so
// the notify loop drains and exits.
func (a *Adapter) setStateLocked(state State, err error) {
	a.state = state
	select {
	case a.stateCh <- stateChange{state: state, err: err}:
	default:
		log.Warn().Str("state", string(state)).Msg("state notification channel full, dropping transition")
	}
	if state == StateClosed {
		close(a.stateCh)
	}
}

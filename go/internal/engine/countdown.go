package engine

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
)

// The reveal is gated behind a short, purely client-side delay: three ticks,
// one per second. It has no protocol representation and is not resumable; if
// the engine is torn down mid-countdown the reveal simply never fires.
const (
	revealDelayTicks   = 3
	revealTickInterval = time.Second
)

// Reveal starts the moderator's countdown-gated reveal. Preconditions are
// checked synchronously: the caller must be the room owner, votes must still
// be hidden, and every voter must have voted. Invoking Reveal while a
// countdown is already running is a no-op, not an error; exactly one
// room:reveal command is sent per countdown.
func (e *Engine) Reveal() error {
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
	if !snap.Identity.Resolved() || snap.Identity.ParticipantID != snap.Room.OwnerID {
		return ErrNotOwner
	}
	if !snap.Room.AllVotersReady() {
		return ErrNotAllVotersReady
	}
	if e.countdownStop != nil {
		// Countdown already running; the second invocation changes nothing.
		return nil
	}

	stop := make(chan struct{})
	e.countdownStop = stop
	e.store.SetCountdown(revealDelayTicks)
	e.queuePublishLocked()
	go e.runCountdown(stop)

	log.Info().Str("instance", e.instanceID).Int("ticks", revealDelayTicks).Msg("reveal countdown started")
	return nil
}

// runCountdown decrements once per tick interval and sends room:reveal when
// it reaches zero. Cancellation (stop closed) clears the countdown without
// firing the deferred command.
func (e *Engine) runCountdown(stop chan struct{}) {
	remaining := revealDelayTicks
	timer := e.clock.NewTimer(revealTickInterval)

	for {
		select {
		case <-timer.Chan():
			remaining--
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			if remaining > 0 {
				e.store.SetCountdown(remaining)
				e.queuePublishLocked()
				e.mu.Unlock()
				timer.Reset(revealTickInterval)
				continue
			}
			e.countdownStop = nil
			e.store.SetCountdown(-1)
			if err := e.send(protocol.RevealCommand{}); err != nil {
				log.Warn().Err(err).Str("instance", e.instanceID).Msg("failed to send reveal after countdown")
			}
			e.queuePublishLocked()
			e.mu.Unlock()
			return

		case <-stop:
			stopAndDrainTimer(timer)
			e.mu.Lock()
			if !e.closed {
				e.store.SetCountdown(-1)
				e.queuePublishLocked()
			}
			e.mu.Unlock()
			log.Debug().Str("instance", e.instanceID).Msg("reveal countdown cancelled")
			return
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a concurrent
// fire cannot leak. Pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

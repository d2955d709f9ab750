package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/marazzai/scoreboard/go/internal/command"
	"github.com/marazzai/scoreboard/go/internal/match"
)

// CommandSink receives one-shot commands the engine emits (the minute
// siren). The hub implements it.
type CommandSink interface {
	BroadcastCommand(cmd command.Command)
}

// Engine drives the authoritative match clock: once per second while the
// timer runs it decrements the clock and all active penalties, auto-stops
// at the buzzer, and fires the per-minute siren.
//
// The engine never writes timerRunning except for the auto-stop at zero;
// starting and stopping the clock is always an operator merge. Ticking is
// independent of connected clients and runs for the process lifetime.
type Engine struct {
	store *match.Store
	sink  CommandSink
	clock clockwork.Clock

	// lastSirenAt is the clock value the minute siren last fired for.
	// Comparing by value (not elapsed time) means tick jitter can never
	// double-fire a minute boundary.
	lastSirenAt int
}

// New creates an engine. Pass a clockwork.NewFakeClock in tests.
func New(store *match.Store, sink CommandSink, clock clockwork.Clock) *Engine {
	return &Engine{store: store, sink: sink, clock: clock, lastSirenAt: -1}
}

// LastSirenAt exposes the dedupe marker so tests can assert on it.
func (e *Engine) LastSirenAt() int {
	return e.lastSirenAt
}

// Run ticks at 1 Hz until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()

	log.Info().Msg("tick engine started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("tick engine stopped")
			return
		case <-ticker.Chan():
			e.Tick()
		}
	}
}

// Tick advances the match by one second. Exposed for tests; Run calls it
// once per wall-clock second.
func (e *Engine) Tick() {
	// Skip the merge entirely while the timer is stopped so subscribers
	// are not flooded with unchanged snapshots.
	if !e.store.Get().TimerRunning {
		return
	}

	fireSiren := false
	e.store.Update(func(s *match.State) {
		if !s.TimerRunning {
			// Operator stopped the clock since the check above.
			return
		}
		if s.TimeSeconds > 0 {
			s.TimeSeconds--
		}
		tickPenalties(&s.HomePenalties)
		tickPenalties(&s.GuestPenalties)

		if s.TimeSeconds == 0 {
			// Buzzer: the only timerRunning write the engine may make.
			s.TimerRunning = false
		}

		if s.SirenEveryMinute && s.TimeSeconds > 0 && s.TimeSeconds%60 == 0 &&
			e.lastSirenAt != s.TimeSeconds {
			e.lastSirenAt = s.TimeSeconds
			fireSiren = true
		}
	})

	if fireSiren {
		e.sink.BroadcastCommand(command.Command{Cmd: command.CmdSiren})
	}
}

// tickPenalties decrements every active slot, collapsing any slot that
// reaches zero back to the free state. A slot never rests at zero.
func tickPenalties(slots *[2]match.PenaltySlot) {
	for i := range slots {
		rem := slots[i].Remaining
		if rem == nil {
			continue
		}
		next := *rem - 1
		if next <= 0 {
			slots[i] = match.FreeSlot()
			continue
		}
		slots[i].Remaining = &next
	}
}

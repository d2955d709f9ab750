package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/marazzai/scoreboard/go/internal/match"
)

// DefaultDebounce is the minimum spacing between snapshot writes.
const DefaultDebounce = time.Second

// writeTimeout bounds a single durable write so a hung database can never
// pile up goroutines.
const writeTimeout = 5 * time.Second

// Writer is the durable sink the saver flushes to.
type Writer interface {
	Save(ctx context.Context, s match.State) error
}

// Saver debounces match mutations into durable snapshot writes: any number
// of mutations within one debounce window collapse into a single write of
// the latest state. Writes run off the caller's goroutine and failures are
// logged and swallowed; persistence must never stall the tick loop or the
// broadcast path.
type Saver struct {
	writer   Writer
	clock    clockwork.Clock
	debounce time.Duration

	mu      sync.Mutex
	pending *match.State
	armed   bool
}

// NewSaver creates a saver flushing to the given writer.
func NewSaver(writer Writer, clock clockwork.Clock, debounce time.Duration) *Saver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Saver{writer: writer, clock: clock, debounce: debounce}
}

// Notify records the latest state and arms the flush timer if it is not
// already armed. Safe to call from a store subscription: it only updates
// bookkeeping and returns.
func (sv *Saver) Notify(s match.State) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.pending = &s
	if sv.armed {
		return
	}
	sv.armed = true
	go sv.flushLater()
}

func (sv *Saver) flushLater() {
	timer := sv.clock.NewTimer(sv.debounce)
	defer timer.Stop()
	<-timer.Chan()

	sv.mu.Lock()
	state := sv.pending
	sv.pending = nil
	sv.armed = false
	sv.mu.Unlock()

	if state == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := sv.writer.Save(ctx, *state); err != nil {
		// Swallowed: the next debounce cycle catches up.
		log.Error().Err(err).Msg("snapshot save failed")
		return
	}
	log.Debug().Msg("snapshot saved")
}

// Flush forces an immediate write of the latest pending state, if any.
// Used on shutdown so the final state is not lost to the debounce window.
func (sv *Saver) Flush() {
	sv.mu.Lock()
	state := sv.pending
	sv.pending = nil
	sv.mu.Unlock()

	if state == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := sv.writer.Save(ctx, *state); err != nil {
		log.Error().Err(err).Msg("final snapshot save failed")
	}
}

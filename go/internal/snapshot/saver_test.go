package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marazzai/scoreboard/go/internal/match"
)

type writerRecorder struct {
	mu       sync.Mutex
	saved    []match.State
	attempts int
	err      error
}

func (w *writerRecorder) Save(_ context.Context, s match.State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.err != nil {
		return w.err
	}
	w.saved = append(w.saved, s)
	return nil
}

func (w *writerRecorder) attemptCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

func (w *writerRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.saved)
}

func (w *writerRecorder) last() match.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saved[len(w.saved)-1]
}

func (w *writerRecorder) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func stateWithScore(home int) match.State {
	s := match.DefaultState()
	s.HomeGoals = home
	return s
}

func TestDebounceCollapsesBurstIntoOneWrite(t *testing.T) {
	fc := clockwork.NewFakeClock()
	w := &writerRecorder{}
	sv := NewSaver(w, fc, time.Second)

	sv.Notify(stateWithScore(1))
	sv.Notify(stateWithScore(2))
	sv.Notify(stateWithScore(3))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)

	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, w.last().HomeGoals, "only the latest state of the burst is written")
}

func TestSeparateWindowsWriteSeparately(t *testing.T) {
	fc := clockwork.NewFakeClock()
	w := &writerRecorder{}
	sv := NewSaver(w, fc, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sv.Notify(stateWithScore(1))
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, time.Millisecond)

	sv.Notify(stateWithScore(2))
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, w.last().HomeGoals)
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	fc := clockwork.NewFakeClock()
	w := &writerRecorder{}
	w.fail(errors.New("connection refused"))
	sv := NewSaver(w, fc, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sv.Notify(stateWithScore(1))
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return w.attemptCount() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, w.count())

	// The failed cycle disarms; the next mutation starts a fresh one.
	w.fail(nil)
	sv.Notify(stateWithScore(2))
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)

	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, w.last().HomeGoals)
}

func TestFlushWritesPendingImmediately(t *testing.T) {
	fc := clockwork.NewFakeClock()
	w := &writerRecorder{}
	sv := NewSaver(w, fc, time.Second)

	sv.Notify(stateWithScore(7))
	sv.Flush()

	assert.Equal(t, 1, w.count())
	assert.Equal(t, 7, w.last().HomeGoals)

	// Nothing pending: Flush is a no-op.
	sv.Flush()
	assert.Equal(t, 1, w.count())
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marazzai/scoreboard/go/internal/command"
	"github.com/marazzai/scoreboard/go/internal/match"
)

type sinkRecorder struct {
	cmds []command.Command
}

func (s *sinkRecorder) BroadcastCommand(cmd command.Command) {
	s.cmds = append(s.cmds, cmd)
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func runningStore(t *testing.T, secs int) *match.Store {
	t.Helper()
	st := match.NewStore()
	st.Merge(match.Partial{TimeSeconds: intPtr(secs), TimerRunning: boolPtr(true)})
	return st
}

func TestTickDecrementsClock(t *testing.T) {
	st := runningStore(t, 100)
	e := New(st, &sinkRecorder{}, clockwork.NewFakeClock())

	e.Tick()

	got := st.Get()
	assert.Equal(t, 99, got.TimeSeconds)
	assert.True(t, got.TimerRunning)
}

func TestTickIsNoOpWhileStopped(t *testing.T) {
	st := match.NewStore()
	st.Merge(match.Partial{TimeSeconds: intPtr(100)})
	var published int
	st.Subscribe(func(match.State) { published++ })
	published = 0
	e := New(st, &sinkRecorder{}, clockwork.NewFakeClock())

	e.Tick()
	e.Tick()

	assert.Equal(t, 100, st.Get().TimeSeconds)
	assert.Zero(t, published, "a stopped clock must not broadcast")
}

func TestAutoStopAtBuzzer(t *testing.T) {
	st := runningStore(t, 1)
	e := New(st, &sinkRecorder{}, clockwork.NewFakeClock())

	e.Tick()

	got := st.Get()
	assert.Equal(t, 0, got.TimeSeconds)
	assert.False(t, got.TimerRunning, "timer must stop in the same tick the clock hits zero")

	// Further ticks leave the stopped state alone.
	e.Tick()
	assert.Equal(t, 0, st.Get().TimeSeconds)
}

func TestPenaltySlotsCollapseAtZero(t *testing.T) {
	st := runningStore(t, 100)
	st.Merge(match.Partial{
		HomePenalties: &[2]match.PenaltySlot{
			{Player: "9", Remaining: intPtr(2)},
			match.FreeSlot(),
		},
		GuestPenalties: &[2]match.PenaltySlot{
			{Player: "22", Remaining: intPtr(1)},
			{Player: "11", Remaining: intPtr(30)},
		},
	})
	e := New(st, &sinkRecorder{}, clockwork.NewFakeClock())

	e.Tick()
	got := st.Get()
	require.NotNil(t, got.HomePenalties[0].Remaining)
	assert.Equal(t, 1, *got.HomePenalties[0].Remaining)
	// The guest penalty that hit zero is already free, never observed at 0.
	assert.True(t, got.GuestPenalties[0].Free())
	assert.Equal(t, match.FreePlayer, got.GuestPenalties[0].Player)
	require.NotNil(t, got.GuestPenalties[1].Remaining)
	assert.Equal(t, 29, *got.GuestPenalties[1].Remaining)

	e.Tick()
	got = st.Get()
	assert.True(t, got.HomePenalties[0].Free())
	assert.True(t, got.HomePenalties[1].Free())
}

func TestMinuteSirenFiresOncePerBoundary(t *testing.T) {
	st := runningStore(t, 121)
	st.Merge(match.Partial{SirenEveryMinute: boolPtr(true)})
	sink := &sinkRecorder{}
	e := New(st, sink, clockwork.NewFakeClock())

	e.Tick() // 120: fire
	require.Len(t, sink.cmds, 1)
	assert.Equal(t, command.CmdSiren, sink.cmds[0].Cmd)
	assert.Equal(t, 120, e.LastSirenAt())

	e.Tick() // 119: no fire
	assert.Len(t, sink.cmds, 1)

	for i := 0; i < 59; i++ { // down to 60: fire exactly once more
		e.Tick()
	}
	assert.Equal(t, 60, st.Get().TimeSeconds)
	assert.Len(t, sink.cmds, 2)
	assert.Equal(t, 60, e.LastSirenAt())
}

func TestMinuteSirenSilentAtZeroAndWhenDisabled(t *testing.T) {
	st := runningStore(t, 61)
	sink := &sinkRecorder{}
	e := New(st, sink, clockwork.NewFakeClock())

	for i := 0; i < 61; i++ {
		e.Tick()
	}
	assert.Equal(t, 0, st.Get().TimeSeconds)
	assert.Empty(t, sink.cmds, "siren disabled: nothing fires, not even at zero")
}

func TestFullPeriodCountdown(t *testing.T) {
	st := match.NewStore()
	sink := &sinkRecorder{}
	e := New(st, sink, clockwork.NewFakeClock())

	st.Merge(match.Partial{TimeSeconds: intPtr(1200)})
	st.Merge(match.Partial{TimerRunning: boolPtr(true)})
	for i := 0; i < 1200; i++ {
		e.Tick()
	}

	got := st.Get()
	assert.Equal(t, 0, got.TimeSeconds)
	assert.False(t, got.TimerRunning)
}

func TestRunTicksOnClockCadence(t *testing.T) {
	st := runningStore(t, 10)
	fc := clockwork.NewFakeClock()
	e := New(st, &sinkRecorder{}, fc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		return st.Get().TimeSeconds == 9
	}, time.Second, time.Millisecond)

	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		return st.Get().TimeSeconds == 8
	}, time.Second, time.Millisecond)
}

package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestDefaultState(t *testing.T) {
	s := DefaultState()

	assert.Equal(t, 0, s.HomeGoals)
	assert.Equal(t, 0, s.AwayGoals)
	assert.Equal(t, 1, s.Period)
	assert.Equal(t, 20*60, s.TimeSeconds)
	assert.False(t, s.TimerRunning)
	assert.Equal(t, "HOME", s.TeamHome)
	assert.Equal(t, "GUEST", s.TeamGuest)
	assert.False(t, s.SirenEveryMinute)
	for _, slot := range s.HomePenalties {
		assert.True(t, slot.Free())
		assert.Equal(t, FreePlayer, slot.Player)
	}
	for _, slot := range s.GuestPenalties {
		assert.True(t, slot.Free())
	}
}

func TestMergeIsShallowPerField(t *testing.T) {
	st := NewStore()

	got := st.Merge(Partial{HomeGoals: intPtr(3)})
	assert.Equal(t, 3, got.HomeGoals)
	assert.Equal(t, 0, got.AwayGoals)
	assert.Equal(t, 20*60, got.TimeSeconds)

	// A second writer touching a different field leaves the first intact:
	// last writer wins per field, not per document.
	got = st.Merge(Partial{AwayGoals: intPtr(1)})
	assert.Equal(t, 3, got.HomeGoals)
	assert.Equal(t, 1, got.AwayGoals)
}

func TestMergeZeroIsDistinctFromAbsent(t *testing.T) {
	st := NewStore()
	st.Merge(Partial{HomeGoals: intPtr(2)})

	got := st.Merge(Partial{HomeGoals: intPtr(0)})
	assert.Equal(t, 0, got.HomeGoals)
}

func TestResetIsIdempotent(t *testing.T) {
	st := NewStore()
	st.Merge(Partial{
		HomeGoals:    intPtr(5),
		TimeSeconds:  intPtr(37),
		TimerRunning: func() *bool { b := true; return &b }(),
	})

	once := st.Reset()
	twice := st.Reset()

	assert.Equal(t, DefaultState(), once)
	assert.Equal(t, once, twice)
}

func TestGetReturnsIsolatedSnapshot(t *testing.T) {
	st := NewStore()
	rem := 120
	st.Merge(Partial{HomePenalties: &[2]PenaltySlot{{Player: "9", Remaining: &rem}, FreeSlot()}})

	snap := st.Get()
	*snap.HomePenalties[0].Remaining = 1
	snap.HomeGoals = 99

	fresh := st.Get()
	require.NotNil(t, fresh.HomePenalties[0].Remaining)
	assert.Equal(t, 120, *fresh.HomePenalties[0].Remaining)
	assert.Equal(t, 0, fresh.HomeGoals)
}

func TestSubscribersSeeSnapshotsInMergeOrder(t *testing.T) {
	st := NewStore()
	var seen []int
	st.Subscribe(func(s State) { seen = append(seen, s.HomeGoals) })

	st.Merge(Partial{HomeGoals: intPtr(1)})
	st.Merge(Partial{HomeGoals: intPtr(2)})
	st.Reset()
	st.Merge(Partial{HomeGoals: intPtr(4)})

	assert.Equal(t, []int{1, 2, 0, 4}, seen)
}

func TestUpdatePublishesResult(t *testing.T) {
	st := NewStore()
	var seen []State
	st.Subscribe(func(s State) { seen = append(seen, s) })

	got := st.Update(func(s *State) { s.TimeSeconds = 59 })

	assert.Equal(t, 59, got.TimeSeconds)
	require.Len(t, seen, 1)
	assert.Equal(t, 59, seen[0].TimeSeconds)
}

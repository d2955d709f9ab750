package match

// FreePlayer is the placeholder shown in a penalty slot that holds no penalty.
const FreePlayer = "--"

// DefaultTimeSeconds is the clock value a fresh match starts with (20:00).
const DefaultTimeSeconds = 20 * 60

// PenaltySlot is one of the two fixed penalty slots a team has.
// Remaining == nil means the slot is free and displayed as a placeholder.
// A slot never holds Remaining == 0: the moment a countdown reaches zero
// the slot collapses back to the free state.
type PenaltySlot struct {
	Player    string `json:"player"`
	Remaining *int   `json:"remaining"`
}

// Free reports whether the slot currently holds no penalty.
func (p PenaltySlot) Free() bool {
	return p.Remaining == nil
}

// FreeSlot returns the canonical empty penalty slot.
func FreeSlot() PenaltySlot {
	return PenaltySlot{Player: FreePlayer}
}

// State is the complete scoreboard state for the single running match.
// Field names on the wire match what admin consoles and displays expect.
type State struct {
	HomeGoals        int            `json:"homeGoals"`
	AwayGoals        int            `json:"awayGoals"`
	Period           int            `json:"period"`
	TimeSeconds      int            `json:"timeSeconds"`
	TimerRunning     bool           `json:"timerRunning"`
	TeamHome         string         `json:"teamHome"`
	TeamGuest        string         `json:"teamGuest"`
	SirenEveryMinute bool           `json:"sirenEveryMinute"`
	HomePenalties    [2]PenaltySlot `json:"homePenalties"`
	GuestPenalties   [2]PenaltySlot `json:"guestPenalties"`
}

// DefaultState returns the state a match starts (and resets) to.
func DefaultState() State {
	return State{
		Period:         1,
		TimeSeconds:    DefaultTimeSeconds,
		TeamHome:       "HOME",
		TeamGuest:      "GUEST",
		HomePenalties:  [2]PenaltySlot{FreeSlot(), FreeSlot()},
		GuestPenalties: [2]PenaltySlot{FreeSlot(), FreeSlot()},
	}
}

// clone returns a deep copy of the state. Penalty slots carry a pointer, so
// a plain struct copy would alias the remaining counters between snapshots.
func (s State) clone() State {
	out := s
	for i := range s.HomePenalties {
		out.HomePenalties[i] = s.HomePenalties[i].clone()
	}
	for i := range s.GuestPenalties {
		out.GuestPenalties[i] = s.GuestPenalties[i].clone()
	}
	return out
}

func (p PenaltySlot) clone() PenaltySlot {
	if p.Remaining == nil {
		return PenaltySlot{Player: p.Player}
	}
	r := *p.Remaining
	return PenaltySlot{Player: p.Player, Remaining: &r}
}

// Partial is a shallow-merge patch against State. Nil fields are left
// untouched, which keeps "absent" distinct from "zero" on the wire.
type Partial struct {
	HomeGoals        *int            `json:"homeGoals,omitempty"`
	AwayGoals        *int            `json:"awayGoals,omitempty"`
	Period           *int            `json:"period,omitempty"`
	TimeSeconds      *int            `json:"timeSeconds,omitempty"`
	TimerRunning     *bool           `json:"timerRunning,omitempty"`
	TeamHome         *string         `json:"teamHome,omitempty"`
	TeamGuest        *string         `json:"teamGuest,omitempty"`
	SirenEveryMinute *bool           `json:"sirenEveryMinute,omitempty"`
	HomePenalties    *[2]PenaltySlot `json:"homePenalties,omitempty"`
	GuestPenalties   *[2]PenaltySlot `json:"guestPenalties,omitempty"`
}

// apply merges the non-nil fields of the patch into s.
func (p Partial) apply(s *State) {
	if p.HomeGoals != nil {
		s.HomeGoals = *p.HomeGoals
	}
	if p.AwayGoals != nil {
		s.AwayGoals = *p.AwayGoals
	}
	if p.Period != nil {
		s.Period = *p.Period
	}
	if p.TimeSeconds != nil {
		s.TimeSeconds = *p.TimeSeconds
	}
	if p.TimerRunning != nil {
		s.TimerRunning = *p.TimerRunning
	}
	if p.TeamHome != nil {
		s.TeamHome = *p.TeamHome
	}
	if p.TeamGuest != nil {
		s.TeamGuest = *p.TeamGuest
	}
	if p.SirenEveryMinute != nil {
		s.SirenEveryMinute = *p.SirenEveryMinute
	}
	if p.HomePenalties != nil {
		for i := range p.HomePenalties {
			s.HomePenalties[i] = p.HomePenalties[i].clone()
		}
	}
	if p.GuestPenalties != nil {
		for i := range p.GuestPenalties {
			s.GuestPenalties[i] = p.GuestPenalties[i].clone()
		}
	}
}

package command

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/marazzai/scoreboard/go/internal/match"
)

// DefaultPenaltySeconds is used when an assignPenalty carries no duration.
const DefaultPenaltySeconds = 120

// Router interprets operator commands against the match store. Malformed
// payloads, unknown discriminants and exhausted penalty slots are all
// silently dropped: there is no ack channel on this path, and unknown
// commands from newer consoles must not break older servers.
type Router struct {
	store *match.Store
}

// NewRouter creates a router bound to the given store.
func NewRouter(store *match.Store) *Router {
	return &Router{store: store}
}

// Apply executes one command. State-mutating commands publish the
// resulting snapshot through the store's subscribers; siren and unknown
// commands leave the state untouched.
func (r *Router) Apply(cmd Command) {
	switch cmd.Cmd {
	case CmdReset:
		r.store.Reset()

	case CmdSetClock:
		var p SetClockPayload
		if !decode(cmd, &p) || p.Secs == nil || *p.Secs < 0 {
			return
		}
		r.store.Merge(match.Partial{TimeSeconds: p.Secs})

	case CmdSetPeriod:
		var p SetPeriodPayload
		if !decode(cmd, &p) || p.Period == nil {
			return
		}
		period := int(*p.Period)
		r.store.Merge(match.Partial{Period: &period})

	case CmdSetNames:
		var p SetNamesPayload
		if !decode(cmd, &p) {
			return
		}
		home, guest := p.Home, p.Guest
		if home == "" {
			home = "HOME"
		}
		if guest == "" {
			guest = "GUEST"
		}
		r.store.Merge(match.Partial{TeamHome: &home, TeamGuest: &guest})

	case CmdSirenEveryMinute:
		var p SirenEveryMinutePayload
		if !decode(cmd, &p) {
			return
		}
		r.store.Merge(match.Partial{SirenEveryMinute: &p.Enabled})

	case CmdAssignPenalty:
		var p AssignPenaltyPayload
		if !decode(cmd, &p) {
			return
		}
		r.assignPenalty(p)

	case CmdClearPenalty:
		var p ClearPenaltyPayload
		if !decode(cmd, &p) {
			return
		}
		r.clearPenalty(p)

	case CmdSiren:
		// Pure one-shot: relayed to displays by the hub, no state effect.

	default:
		log.Debug().Str("cmd", cmd.Cmd).Msg("ignoring unknown command")
	}
}

// IsMutating reports whether the command kind can change match state.
func IsMutating(cmd string) bool {
	switch cmd {
	case CmdReset, CmdSetClock, CmdSetPeriod, CmdSetNames,
		CmdSirenEveryMinute, CmdAssignPenalty, CmdClearPenalty:
		return true
	}
	return false
}

func (r *Router) assignPenalty(p AssignPenaltyPayload) {
	if p.Team != "home" && p.Team != "guest" {
		return
	}
	player := string(p.Player)
	if player == "" {
		player = match.FreePlayer
	}
	duration := DefaultPenaltySeconds
	if p.DurationSec != nil {
		duration = *p.DurationSec
	} else if p.Duration != nil {
		duration = *p.Duration
	}
	if duration <= 0 {
		return
	}

	r.store.Update(func(s *match.State) {
		slots := teamSlots(s, p.Team)
		for i := range slots {
			if slots[i].Free() {
				d := duration
				slots[i] = match.PenaltySlot{Player: player, Remaining: &d}
				return
			}
		}
		// Both slots occupied: fixed capacity, the request is dropped.
	})
}

func (r *Router) clearPenalty(p ClearPenaltyPayload) {
	if p.Team != "home" && p.Team != "guest" {
		return
	}
	if p.Slot < 1 || p.Slot > 2 {
		return
	}
	r.store.Update(func(s *match.State) {
		teamSlots(s, p.Team)[p.Slot-1] = match.FreeSlot()
	})
}

func teamSlots(s *match.State, team string) *[2]match.PenaltySlot {
	if team == "home" {
		return &s.HomePenalties
	}
	return &s.GuestPenalties
}

func decode(cmd Command, dst any) bool {
	if len(cmd.Payload) == 0 {
		// Consoles omit the payload entirely for all-defaults commands.
		return true
	}
	if err := json.Unmarshal(cmd.Payload, dst); err != nil {
		log.Debug().Err(err).Str("cmd", cmd.Cmd).Msg("dropping malformed command payload")
		return false
	}
	return true
}

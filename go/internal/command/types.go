package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Command is the tagged wire form of an operator action: a discriminant
// plus a cmd-specific payload. Payload shapes are validated here at the
// deserialization boundary; handlers never probe raw maps.
type Command struct {
	Cmd     string          `json:"cmd"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Known command discriminants.
const (
	CmdReset            = "reset"
	CmdSetClock         = "setClock"
	CmdSetPeriod        = "setPeriod"
	CmdSetNames         = "setNames"
	CmdSirenEveryMinute = "sirenEveryMinute"
	CmdAssignPenalty    = "assignPenalty"
	CmdClearPenalty     = "clearPenalty"
	CmdSiren            = "siren"
)

// SetClockPayload sets the clock to an absolute value without touching the
// running flag.
type SetClockPayload struct {
	Secs *int `json:"secs"`
}

// SetPeriodPayload carries the period as sent by consoles, which emit
// either a JSON number or a numeric string.
type SetPeriodPayload struct {
	Period *FlexInt `json:"period"`
}

// SetNamesPayload updates the display names. Missing or empty fields fall
// back to the defaults.
type SetNamesPayload struct {
	Home  string `json:"home"`
	Guest string `json:"guest"`
}

// SirenEveryMinutePayload toggles the per-minute siren flag.
type SirenEveryMinutePayload struct {
	Enabled bool `json:"enabled"`
}

// AssignPenaltyPayload books a penalty into the first free slot of a team.
// Older consoles send "duration" instead of "durationSec".
type AssignPenaltyPayload struct {
	Team        string     `json:"team"`
	Player      FlexString `json:"player"`
	DurationSec *int       `json:"durationSec"`
	Duration    *int       `json:"duration"`
}

// ClearPenaltyPayload force-clears a 1-indexed penalty slot.
type ClearPenaltyPayload struct {
	Team string `json:"team"`
	Slot int    `json:"slot"`
}

// FlexInt decodes a JSON number or a numeric string into an int.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %q", s)
	}
	*f = FlexInt(n)
	return nil
}

// FlexString decodes a JSON string or number into a string, matching the
// loose player-number field consoles send.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("not a string or number: %s", s)
	}
	*f = FlexString(num.String())
	return nil
}

package gateway

import (
	"encoding/json"

	"github.com/marazzai/scoreboard/go/internal/command"
	"github.com/marazzai/scoreboard/go/internal/match"
)

// Envelope is the framing for every message on the scoreboard channel, in
// both directions: an event name plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event names on the wire.
const (
	EventJoin   = "join"
	EventUpdate = "scoreboard:update"
	EventCmd    = "scoreboard:cmd"
)

// Room names with server-side meaning. Displays get resynced on join and
// receive one-shot commands; controllers are ordinary bidirectional peers.
const (
	RoomDisplays    = "displays"
	RoomControllers = "controllers"
)

// JoinPayload subscribes the sending peer to a named room.
type JoinPayload struct {
	Room string `json:"room"`
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// EncodeState frames a snapshot as a scoreboard:update push.
func EncodeState(s match.State) ([]byte, error) {
	return marshalEnvelope(EventUpdate, s)
}

// EncodeCommand frames a one-shot command as a scoreboard:cmd push.
func EncodeCommand(cmd command.Command) ([]byte, error) {
	return marshalEnvelope(EventCmd, cmd)
}

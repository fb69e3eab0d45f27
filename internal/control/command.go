package control

import (
	"encoding/json"
	"errors"
	"time"
)

// Command kinds accepted on the text channel.
const (
	CmdStart = "start"
	CmdStop  = "stop"
	CmdLive  = "live"
	CmdSpeed = "speed"
	CmdGoto  = "goto"
)

// ErrBadRequest models a BadRequest error kind: malformed timestamp or
// bad JSON.
var ErrBadRequest = errors.New("control: bad request")

// Command is one parsed client-to-server message.
type Command struct {
	Cmd       string
	From      time.Time
	To        *time.Time
	HasTo     bool
	Speed     float64
	Timestamp time.Time
}

// rawCommand mirrors the wire JSON shape before field validation.
type rawCommand struct {
	Cmd       string  `json:"cmd"`
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// ParseCommand decodes and validates one text-channel command. Unknown
// cmd values are not rejected here (the session's state machine returns
// 400 for them); malformed field contents (timestamps, missing required
// fields) are.
func ParseCommand(body []byte) (Command, error) {
	var raw rawCommand
	if err := json.Unmarshal(body, &raw); err != nil {
		return Command{}, ErrBadRequest
	}

	cmd := Command{Cmd: raw.Cmd}

	switch raw.Cmd {
	case CmdStart:
		if raw.From == "" {
			return Command{}, ErrBadRequest
		}
		from, err := time.Parse(time.RFC3339, raw.From)
		if err != nil {
			return Command{}, ErrBadRequest
		}
		cmd.From = from.UTC()
		if raw.To != "" {
			to, err := time.Parse(time.RFC3339, raw.To)
			if err != nil {
				return Command{}, ErrBadRequest
			}
			toUTC := to.UTC()
			cmd.To = &toUTC
			cmd.HasTo = true
		}

	case CmdSpeed:
		if raw.Speed < 0.1 || raw.Speed > 10.0 {
			return Command{}, ErrBadRequest
		}
		cmd.Speed = raw.Speed

	case CmdGoto:
		if raw.Timestamp == "" {
			return Command{}, ErrBadRequest
		}
		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return Command{}, ErrBadRequest
		}
		cmd.Timestamp = ts.UTC()

	case CmdStop, CmdLive:
		// no fields required

	default:
		// Unknown command: let the caller issue a 400 response; we still
		// hand back the parsed cmd string so the session can log it.
	}

	return cmd, nil
}

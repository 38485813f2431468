package game

import "encoding/json"

// AdminCommand is the envelope every engine decodes admin commands from:
// a command name plus an optional game-specific payload.
type AdminCommand struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeAdminCommand parses the raw command JSON. A missing or empty name
// is rejected here so engines can assume Name is set.
func DecodeAdminCommand(raw json.RawMessage) (AdminCommand, error) {
	var cmd AdminCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return AdminCommand{}, &IllegalTransitionError{Command: "?", Reason: "malformed command JSON"}
	}
	if cmd.Name == "" {
		return AdminCommand{}, &IllegalTransitionError{Command: "?", Reason: "missing command name"}
	}
	return cmd, nil
}

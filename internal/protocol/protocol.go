// Package protocol defines the JSON frames exchanged over the lobby
// WebSocket. Every frame is a text message of the form
// {"type": "...", "payload": {...}}.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client-to-server frame types.
const (
	TypeBindToLobby   = "BindToLobby"
	TypeAdminCommand  = "AdminCommand"
	TypeChatVoteRelay = "ChatVoteRelay"
	TypePing          = "Ping"
)

// Server-to-client frame types.
const (
	TypeConnectionAck    = "ConnectionAck"
	TypeFullStateUpdate  = "FullStateUpdate"
	TypeIncrementalEvent = "IncrementalEvent"
	TypeSystemError      = "SystemError"
	TypePong             = "Pong"
)

// SystemError codes.
const (
	CodeProtocolError     = "PROTOCOL_ERROR"
	CodeLobbyNotFound     = "LOBBY_NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeNotAcceptingVotes = "NOT_ACCEPTING_VOTES"
	CodeInternal          = "INTERNAL"
)

// ClientMessage is the envelope of every client-to-server frame.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// BindToLobby is the mandatory first frame on a new connection.
type BindToLobby struct {
	LobbyID    uuid.UUID `json:"lobby_id"`
	AdminToken string    `json:"admin_token,omitempty"`
}

// AdminCommand relays a game-specific streamer command.
type AdminCommand struct {
	GameTypeID string          `json:"game_type_id"`
	Command    json.RawMessage `json:"command"`
}

// ChatVoteRelay carries one chat message from the ingestion layer.
type ChatVoteRelay struct {
	VoterUsername string `json:"voter_username"`
	RawText       string `json:"raw_text"`
}

// ServerMessage is the envelope of every server-to-client frame.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ConnectionAck confirms a successful bind.
type ConnectionAck struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	LobbyID      uuid.UUID `json:"lobby_id"`
}

// FullStateUpdate carries a complete game snapshot.
type FullStateUpdate struct {
	SequenceNumber uint64 `json:"sequence_number"`
	GameTypeID     string `json:"game_type_id"`
	State          any    `json:"state"`
}

// IncrementalEvent carries one fine-grained game event.
type IncrementalEvent struct {
	SequenceNumber uint64 `json:"sequence_number"`
	GameTypeID     string `json:"game_type_id"`
	EventType      string `json:"event_type"`
	Data           any    `json:"data"`
}

// SystemError reports a failure to one client.
type SystemError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ParseClientMessage decodes a raw frame into its envelope.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed frame: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("frame is missing type")
	}
	return msg, nil
}

// DecodePayload unmarshals a client payload into dst.
func DecodePayload(msg ClientMessage, dst any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("frame %q is missing payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return fmt.Errorf("malformed %q payload: %w", msg.Type, err)
	}
	return nil
}

// MarshalServer encodes a server frame for the wire.
func MarshalServer(typ string, payload any) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: typ, Payload: payload})
}

// NewSystemError builds a ready-to-send error frame.
func NewSystemError(code, message string) ServerMessage {
	return ServerMessage{Type: TypeSystemError, Payload: SystemError{Message: message, Code: code}}
}

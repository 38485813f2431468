package protocol

import "github.com/coder/websocket"

// Application close codes, in the 4000-4999 range reserved for private use.
const (
	// CloseProtocolError signals an unrecoverable framing or binding error.
	CloseProtocolError websocket.StatusCode = 4000

	// CloseBindTimeout signals that no BindToLobby arrived in time.
	CloseBindTimeout websocket.StatusCode = 4001

	// CloseLobbyShutdown signals that the lobby was destroyed.
	CloseLobbyShutdown websocket.StatusCode = 4002

	// CloseSlowConsumer signals that the client could not keep up with the
	// event stream and was dropped.
	CloseSlowConsumer websocket.StatusCode = 4003
)

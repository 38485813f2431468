// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mstrand/partyhub/internal/game"
	"github.com/mstrand/partyhub/internal/lobby"
	"github.com/mstrand/partyhub/internal/middleware"
	"github.com/mstrand/partyhub/internal/protocol"
)

const (
	// bindTimeout is how long a fresh connection may sit unbound.
	bindTimeout = 10 * time.Second

	// writeTimeout bounds a single frame write.
	writeTimeout = 3 * time.Second

	// pingInterval is the server-side liveness check cadence.
	pingInterval = 30 * time.Second

	maxFrameBytes = 64 * 1024
)

// session is one WebSocket connection through its lifecycle:
// awaiting-bind, bound, closed.
type session struct {
	conn   *websocket.Conn
	logger *logrus.Logger
	remote string

	lob        *lobby.Lobby
	sub        *lobby.Subscriber
	adminToken string

	// outc carries session-local frames (errors, pongs) to the writer;
	// closec asks the writer to flush and close the socket; writerDone
	// closes when the write pump has exited.
	outc       chan []byte
	closec     chan closeRequest
	writerDone chan struct{}
}

type closeRequest struct {
	code   websocket.StatusCode
	reason string
}

// handleLobbyWS upgrades the connection and runs the session to completion.
func (s *Server) handleLobbyWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"partyhub"},
		OriginPatterns: []string{"*"}, // Adjust in production
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	c.SetReadLimit(maxFrameBytes)
	defer c.Close(websocket.StatusInternalError, "handler finished")

	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	sess := &session{
		conn:       c,
		logger:     s.Logger,
		remote:     r.RemoteAddr,
		outc:       make(chan []byte, 16),
		closec:     make(chan closeRequest, 1),
		writerDone: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Awaiting-bind: the first frame decides whether this session lives.
	if !sess.awaitBind(ctx, s.Registry) {
		return
	}

	go sess.writePump(ctx, cancel)
	go sess.pingLoop(ctx, cancel)

	sess.readPump(ctx)

	// Unsubscribe wakes the writer, then the writer gets a bounded window
	// to flush any queued final frames and pick its close status before
	// the deferred close tears the socket down.
	sess.lob.Unsubscribe(sess.sub.ID)
	select {
	case <-sess.writerDone:
	case <-time.After(writeTimeout):
	}
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, nil)
}

// awaitBind reads and validates the mandatory BindToLobby frame, then
// subscribes, sending ConnectionAck and the state snapshot. It returns
// false when the session must not continue; the socket is already closed
// with a reason in that case.
func (sess *session) awaitBind(ctx context.Context, registry *lobby.Registry) bool {
	bindCtx, cancel := context.WithTimeout(ctx, bindTimeout)
	defer cancel()

	typ, raw, err := sess.conn.Read(bindCtx)
	if err != nil {
		sess.conn.Close(protocol.CloseBindTimeout, "no bind received")
		return false
	}
	if typ != websocket.MessageText {
		sess.failBind(protocol.CodeProtocolError, "expected a text frame")
		return false
	}

	msg, err := protocol.ParseClientMessage(raw)
	if err != nil || msg.Type != protocol.TypeBindToLobby {
		sess.failBind(protocol.CodeProtocolError, "first frame must be BindToLobby")
		return false
	}
	var bind protocol.BindToLobby
	if err := protocol.DecodePayload(msg, &bind); err != nil {
		sess.failBind(protocol.CodeProtocolError, err.Error())
		return false
	}

	lob, ok := registry.Get(bind.LobbyID)
	if !ok {
		sess.failBind(protocol.CodeLobbyNotFound, "lobby does not exist")
		return false
	}

	sub := lobby.NewSubscriber()
	snapshot, err := lob.Subscribe(sub)
	if err != nil {
		sess.failBind(protocol.CodeLobbyNotFound, "lobby is shutting down")
		return false
	}
	sess.lob = lob
	sess.sub = sub
	sess.adminToken = bind.AdminToken

	ack, err := protocol.MarshalServer(protocol.TypeConnectionAck, protocol.ConnectionAck{
		ConnectionID: sub.ID,
		LobbyID:      lob.ID,
	})
	if err != nil {
		lob.Unsubscribe(sub.ID)
		sess.conn.Close(websocket.StatusInternalError, "failed to build ack")
		return false
	}

	// Ack and snapshot go out before the write pump starts draining the
	// subscription, so the snapshot always precedes any event.
	if err := sess.writeFrame(ctx, ack); err != nil {
		lob.Unsubscribe(sub.ID)
		return false
	}
	if err := sess.writeFrame(ctx, snapshot); err != nil {
		lob.Unsubscribe(sub.ID)
		return false
	}
	return true
}

// failBind reports a bind-phase failure and closes the socket. Writes here
// are safe because no other goroutine exists yet.
func (sess *session) failBind(code, message string) {
	frame, err := protocol.MarshalServer(protocol.TypeSystemError, protocol.SystemError{Message: message, Code: code})
	if err == nil {
		writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_ = sess.conn.Write(writeCtx, websocket.MessageText, frame)
	}
	status := protocol.CloseProtocolError
	if code == protocol.CodeLobbyNotFound {
		status = websocket.StatusPolicyViolation
	}
	sess.conn.Close(status, message)
}

// readPump handles incoming frames for a bound session until the
// connection dies or a fatal protocol error occurs.
func (sess *session) readPump(ctx context.Context) {
	for {
		typ, raw, err := sess.conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway && ctx.Err() == nil {
				sess.logger.WithField("remote", sess.remote).Debugf("read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		msg, err := protocol.ParseClientMessage(raw)
		if err != nil {
			sess.fatal(protocol.CodeProtocolError, err.Error())
			return
		}

		switch msg.Type {
		case protocol.TypePing:
			sess.send(protocol.ServerMessage{Type: protocol.TypePong})

		case protocol.TypeBindToLobby:
			sess.fatal(protocol.CodeProtocolError, "session is already bound")
			return

		case protocol.TypeAdminCommand:
			var cmd protocol.AdminCommand
			if err := protocol.DecodePayload(msg, &cmd); err != nil {
				sess.fatal(protocol.CodeProtocolError, err.Error())
				return
			}
			sess.dispatchAdmin(cmd)

		case protocol.TypeChatVoteRelay:
			var relay protocol.ChatVoteRelay
			if err := protocol.DecodePayload(msg, &relay); err != nil {
				sess.fatal(protocol.CodeProtocolError, err.Error())
				return
			}
			if relay.VoterUsername == "" {
				continue
			}
			sess.lob.DispatchChat(relay.VoterUsername, relay.RawText)

		default:
			sess.fatal(protocol.CodeProtocolError, "unknown frame type "+msg.Type)
			return
		}
	}
}

// dispatchAdmin runs the command and reports failures back to this session
// only. Errors here never close the connection.
func (sess *session) dispatchAdmin(cmd protocol.AdminCommand) {
	err := sess.lob.DispatchAdmin(sess.adminToken, cmd.GameTypeID, cmd.Command)
	switch {
	case err == nil:
	case errors.Is(err, lobby.ErrUnauthorized):
		sess.send(protocol.NewSystemError(protocol.CodeUnauthorized, "admin token required"))
	case errors.Is(err, lobby.ErrLobbyClosed):
		sess.send(protocol.NewSystemError(protocol.CodeLobbyNotFound, "lobby is closed"))
	case game.IsIllegalTransition(err):
		sess.send(protocol.NewSystemError(protocol.CodeIllegalTransition, err.Error()))
	default:
		sess.logger.Errorf("admin dispatch: %v", err)
		sess.send(protocol.NewSystemError(protocol.CodeInternal, "internal error"))
	}
}

// writePump is the only writer of data frames after bind. It interleaves
// lobby fan-out with session-local frames and owns the final close.
func (sess *session) writePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	defer close(sess.writerDone)
	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-sess.sub.Out:
			if !ok {
				// A queued deliberate close outranks the dropped
				// subscription: the read side unsubscribes on its way
				// out, and that must not mask a protocol-error close.
				select {
				case req := <-sess.closec:
					sess.flushLocal(ctx)
					sess.conn.Close(req.code, req.reason)
					return
				default:
				}
				// The lobby dropped us: either it shut down or we
				// could not keep up with the event stream.
				code := protocol.CloseSlowConsumer
				reason := "event stream overflow"
				if sess.lob.Closed() {
					code = protocol.CloseLobbyShutdown
					reason = "lobby closed"
				}
				sess.conn.Close(code, reason)
				return
			}
			if err := sess.writeFrame(ctx, frame); err != nil {
				return
			}

		case frame := <-sess.outc:
			if err := sess.writeFrame(ctx, frame); err != nil {
				return
			}

		case req := <-sess.closec:
			sess.flushLocal(ctx)
			sess.conn.Close(req.code, req.reason)
			return
		}
	}
}

// flushLocal drains pending session-local frames before a deliberate close,
// so the final SystemError actually reaches the client.
func (sess *session) flushLocal(ctx context.Context) {
	for {
		select {
		case frame := <-sess.outc:
			if err := sess.writeFrame(ctx, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (sess *session) writeFrame(ctx context.Context, frame []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return sess.conn.Write(writeCtx, websocket.MessageText, frame)
}

// send queues a session-local frame; it drops the frame rather than block
// when the session is backed up.
func (sess *session) send(msg protocol.ServerMessage) {
	frame, err := protocol.MarshalServer(msg.Type, msg.Payload)
	if err != nil {
		sess.logger.Errorf("marshal %s frame: %v", msg.Type, err)
		return
	}
	select {
	case sess.outc <- frame:
	default:
	}
}

// fatal reports a protocol error and asks the writer to close the socket.
func (sess *session) fatal(code, message string) {
	sess.send(protocol.NewSystemError(code, message))
	select {
	case sess.closec <- closeRequest{code: protocol.CloseProtocolError, reason: message}:
	default:
	}
}

// pingLoop keeps the connection honest; an unanswered ping tears the
// session down.
func (sess *session) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
			err := sess.conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				sess.logger.WithField("remote", sess.remote).Debug("ping failed, closing session")
				cancel()
				return
			}
		}
	}
}

// Package lobby hosts the live game sessions: each Lobby owns one game
// engine, serializes every mutation through a single writer, stamps gapless
// sequence numbers, and fans events out to subscribed connections.
package lobby

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mstrand/partyhub/internal/game"
	"github.com/mstrand/partyhub/internal/protocol"
)

// ErrUnauthorized is returned for admin commands without a valid token.
var ErrUnauthorized = errors.New("invalid admin token")

// ErrLobbyClosed is returned once the lobby has been destroyed.
var ErrLobbyClosed = errors.New("lobby is closed")

// subscriberBuffer is the per-connection frame buffer. A subscriber that
// falls this many frames behind is dropped rather than allowed to stall
// dispatch.
const subscriberBuffer = 64

// Subscriber is one fan-out target. Out delivers marshaled server frames
// and is closed by the lobby when the subscriber is removed.
type Subscriber struct {
	ID  uuid.UUID
	Out chan []byte
}

// NewSubscriber returns a subscriber with a fresh ID and buffered channel.
func NewSubscriber() *Subscriber {
	return &Subscriber{ID: uuid.New(), Out: make(chan []byte, subscriberBuffer)}
}

// EventRecord is the compact form of an accepted mutation handed to the
// event sink.
type EventRecord struct {
	LobbyID    uuid.UUID `json:"lobby_id"`
	Seq        uint64    `json:"seq"`
	GameTypeID string    `json:"game_type_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"ts"`
}

// EventSink receives accepted mutations for external tooling. Publish must
// never block.
type EventSink interface {
	Publish(rec EventRecord)
}

// NoopSink discards all records.
type NoopSink struct{}

// Publish implements EventSink.
func (NoopSink) Publish(EventRecord) {}

// Lobby binds one game engine to its subscribers. All mutations are
// serialized by mu, so the engine never sees concurrent calls and frames
// reach every subscriber in one total order.
type Lobby struct {
	ID         uuid.UUID
	GameTypeID string
	CreatedAt  time.Time

	logger      *logrus.Logger
	engine      game.Engine
	sink        EventSink
	verifyToken func(token string) bool
	now         func() time.Time

	mu           sync.Mutex
	seq          uint64
	subs         map[uuid.UUID]*Subscriber
	lastActivity time.Time
	closed       bool
}

// New returns a live lobby around engine. verifyToken authenticates admin
// commands; sink may be nil for no external feed.
func New(id uuid.UUID, engine game.Engine, verifyToken func(string) bool, sink EventSink, logger *logrus.Logger) *Lobby {
	if sink == nil {
		sink = NoopSink{}
	}
	now := time.Now
	return &Lobby{
		ID:           id,
		GameTypeID:   engine.TypeID(),
		CreatedAt:    now(),
		logger:       logger,
		engine:       engine,
		sink:         sink,
		verifyToken:  verifyToken,
		now:          now,
		subs:         map[uuid.UUID]*Subscriber{},
		lastActivity: now(),
	}
}

// Subscribe registers sub and returns the marshaled FullStateUpdate
// snapshot carrying the current sequence number. Registration and snapshot
// are atomic, so every frame delivered afterwards carries a strictly
// greater sequence number. Subscribing an ID twice replaces the previous
// registration.
func (l *Lobby) Subscribe(sub *Subscriber) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLobbyClosed
	}
	if old, ok := l.subs[sub.ID]; ok && old != sub {
		close(old.Out)
	}
	l.subs[sub.ID] = sub
	l.lastActivity = l.now()
	return l.snapshotFrameLocked()
}

// Unsubscribe removes the subscriber and closes its channel. Calling it for
// an unknown or already-removed ID is a no-op.
func (l *Lobby) Unsubscribe(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sub, ok := l.subs[id]; ok {
		delete(l.subs, id)
		close(sub.Out)
		l.lastActivity = l.now()
	}
}

// DispatchAdmin authenticates and applies a streamer command. The returned
// error is nil exactly when the state advanced.
func (l *Lobby) DispatchAdmin(token, gameTypeID string, cmd json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLobbyClosed
	}
	if l.verifyToken != nil && !l.verifyToken(token) {
		return ErrUnauthorized
	}
	if gameTypeID != l.GameTypeID {
		return &game.IllegalTransitionError{
			Command: "?",
			Reason:  fmt.Sprintf("command targets game type %q but this lobby hosts %q", gameTypeID, l.GameTypeID),
		}
	}
	l.checkExpiryLocked()
	events, err := l.engine.ApplyAdmin(cmd)
	if err != nil {
		return err
	}
	l.afterMutationLocked(events)
	return nil
}

// DispatchChat applies one chat message. Rejected or meaningless input is
// dropped silently: chat voters never receive feedback frames. Engines that
// implement game.ChatPreparer get their slow lookups run before the lock is
// taken, so a burst of submissions never stalls dispatch for the lobby.
func (l *Lobby) DispatchChat(username, text string) {
	apply := l.engine.ApplyChat
	if p, ok := l.engine.(game.ChatPreparer); ok {
		prepared, err := p.PrepareChat(username, text)
		if err != nil {
			l.logChatDropped(username, err)
			return
		}
		apply = func(string, string) ([]game.Event, error) { return prepared() }
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.checkExpiryLocked()
	events, err := apply(username, text)
	if err != nil {
		l.logChatDropped(username, err)
		return
	}
	l.afterMutationLocked(events)
}

func (l *Lobby) logChatDropped(username string, err error) {
	if !errors.Is(err, game.ErrIgnored) {
		l.logger.WithFields(logrus.Fields{"lobby": l.ID, "user": username}).Debugf("chat dropped: %v", err)
	}
}

// checkExpiryLocked lets a timed engine end its game before the next
// command is judged. The expiry commits as its own mutation with its own
// sequence number, so the transition reaches subscribers even when the
// command that triggered the check is rejected.
func (l *Lobby) checkExpiryLocked() {
	if exp, ok := l.engine.(game.Expirer); ok {
		if events, over := exp.CheckExpiry(); over {
			l.afterMutationLocked(events)
		}
	}
}

// afterMutationLocked advances the sequence number by exactly one and fans
// out the mutation's frames: incremental events first, then the full
// snapshot, all stamped with the new sequence number.
func (l *Lobby) afterMutationLocked(events []game.Event) {
	l.seq++
	l.lastActivity = l.now()

	frames := make([][]byte, 0, len(events)+1)
	for _, ev := range events {
		frame, err := protocol.MarshalServer(protocol.TypeIncrementalEvent, protocol.IncrementalEvent{
			SequenceNumber: l.seq,
			GameTypeID:     l.GameTypeID,
			EventType:      ev.Type,
			Data:           ev.Data,
		})
		if err != nil {
			l.logger.WithField("lobby", l.ID).Errorf("marshal event %s: %v", ev.Type, err)
			continue
		}
		frames = append(frames, frame)
		l.sink.Publish(EventRecord{
			LobbyID:    l.ID,
			Seq:        l.seq,
			GameTypeID: l.GameTypeID,
			EventType:  ev.Type,
			Timestamp:  l.lastActivity,
		})
	}
	if snapshot, err := l.snapshotFrameLocked(); err == nil {
		frames = append(frames, snapshot)
	}
	l.fanOutLocked(frames)
}

// fanOutLocked delivers frames with a non-blocking send. A subscriber whose
// buffer is full is removed on the spot; dispatch never waits for I/O.
func (l *Lobby) fanOutLocked(frames [][]byte) {
	for id, sub := range l.subs {
		dropped := false
		for _, frame := range frames {
			select {
			case sub.Out <- frame:
			default:
				dropped = true
			}
			if dropped {
				break
			}
		}
		if dropped {
			delete(l.subs, id)
			close(sub.Out)
			l.logger.WithFields(logrus.Fields{"lobby": l.ID, "subscriber": id}).Warn("dropping slow subscriber")
		}
	}
}

func (l *Lobby) snapshotFrameLocked() ([]byte, error) {
	frame, err := protocol.MarshalServer(protocol.TypeFullStateUpdate, protocol.FullStateUpdate{
		SequenceNumber: l.seq,
		GameTypeID:     l.GameTypeID,
		State:          l.engine.Snapshot(),
	})
	if err != nil {
		l.logger.WithField("lobby", l.ID).Errorf("marshal snapshot: %v", err)
		return nil, err
	}
	return frame, nil
}

// Close destroys the lobby: all subscriber channels are closed and further
// dispatches fail. Idempotent.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, sub := range l.subs {
		delete(l.subs, id)
		close(sub.Out)
	}
}

// Seq returns the current sequence number.
func (l *Lobby) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// SubscriberCount returns the number of registered subscribers.
func (l *Lobby) SubscriberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// LastActivity returns the time of the last accepted mutation or
// subscription change.
func (l *Lobby) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActivity
}

// Closed reports whether Close has run.
func (l *Lobby) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

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
	"github.com/mstrand/partyhub/internal/game/clipqueue"
	"github.com/mstrand/partyhub/internal/game/dealnodeal"
	"github.com/mstrand/partyhub/internal/game/quiz"
	"github.com/mstrand/partyhub/internal/game/wordguess"
)

// ErrUnknownGameType is returned for IDs outside the closed game type set.
var ErrUnknownGameType = errors.New("unknown game type")

// ErrGameTypeDisabled is returned for known types excluded by configuration.
var ErrGameTypeDisabled = errors.New("game type is disabled")

// Deps carries everything lobby creation needs.
type Deps struct {
	Logger    *logrus.Logger
	Words     wordguess.WordSource
	Questions quiz.Source
	Resolver  clipqueue.Resolver
	Sink      EventSink

	// MintToken issues a fresh admin token for the lobby; VerifyToken
	// checks a presented token against the lobby it claims.
	MintToken   func(lobbyID uuid.UUID) (string, error)
	VerifyToken func(lobbyID uuid.UUID, token string) bool

	// EnabledTypes limits creatable game types. Empty means all.
	EnabledTypes []string

	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Registry owns every live lobby: creation, lookup, destruction, and the
// idle sweep that evicts abandoned lobbies.
type Registry struct {
	logger  *logrus.Logger
	deps    Deps
	enabled map[string]bool

	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby

	stopOnce sync.Once
	started  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewRegistry returns a registry. Call Start to run the idle sweeper.
func NewRegistry(deps Deps) *Registry {
	if deps.IdleTimeout <= 0 {
		deps.IdleTimeout = 60 * time.Minute
	}
	if deps.SweepInterval <= 0 {
		deps.SweepInterval = 5 * time.Minute
	}
	var enabled map[string]bool
	if len(deps.EnabledTypes) > 0 {
		enabled = map[string]bool{}
		for _, id := range deps.EnabledTypes {
			if id == "all" {
				enabled = nil
				break
			}
			enabled[id] = true
		}
	}
	return &Registry{
		logger:  deps.Logger,
		deps:    deps,
		enabled: enabled,
		lobbies: map[uuid.UUID]*Lobby{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// CreateLobby builds the engine for gameTypeID, registers a new lobby
// around it, and returns the lobby together with its freshly minted admin
// token. config is the optional game-specific creation config.
func (r *Registry) CreateLobby(gameTypeID string, config json.RawMessage) (*Lobby, string, error) {
	if !game.IsKnownType(gameTypeID) {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownGameType, gameTypeID)
	}
	if r.enabled != nil && !r.enabled[gameTypeID] {
		return nil, "", fmt.Errorf("%w: %q", ErrGameTypeDisabled, gameTypeID)
	}

	engine, err := r.buildEngine(gameTypeID, config)
	if err != nil {
		return nil, "", err
	}

	id := uuid.New()
	token := ""
	if r.deps.MintToken != nil {
		token, err = r.deps.MintToken(id)
		if err != nil {
			return nil, "", fmt.Errorf("mint admin token: %w", err)
		}
	}
	var verify func(string) bool
	if r.deps.VerifyToken != nil {
		verify = func(t string) bool { return r.deps.VerifyToken(id, t) }
	}

	lob := New(id, engine, verify, r.deps.Sink, r.logger)

	r.mu.Lock()
	r.lobbies[id] = lob
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{"lobby": id, "game_type": gameTypeID}).Info("lobby created")
	return lob, token, nil
}

// buildEngine is the closed dispatch over the game type set.
func (r *Registry) buildEngine(gameTypeID string, config json.RawMessage) (game.Engine, error) {
	switch gameTypeID {
	case game.TypeDealNoDeal:
		return dealnodeal.New(), nil
	case game.TypeWordGuess:
		settings, err := wordguess.ParseConfig(config)
		if err != nil {
			return nil, err
		}
		return wordguess.New(r.deps.Words, wordguess.WithSettings(settings)), nil
	case game.TypeQuiz:
		settings, err := quiz.ParseConfig(config)
		if err != nil {
			return nil, err
		}
		return quiz.New(r.deps.Questions, quiz.WithSettings(settings)), nil
	case game.TypeClipQueue:
		settings, err := clipqueue.ParseConfig(config)
		if err != nil {
			return nil, err
		}
		return clipqueue.New(r.deps.Resolver, clipqueue.WithSettings(settings)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameType, gameTypeID)
	}
}

// Get returns the lobby for id, or false for unknown or evicted IDs.
func (r *Registry) Get(id uuid.UUID) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lob, ok := r.lobbies[id]
	return lob, ok
}

// List returns all live lobbies.
func (r *Registry) List() []*Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Lobby, 0, len(r.lobbies))
	for _, lob := range r.lobbies {
		out = append(out, lob)
	}
	return out
}

// DestroyLobby closes the lobby and removes it. Idempotent.
func (r *Registry) DestroyLobby(id uuid.UUID) {
	r.mu.Lock()
	lob, ok := r.lobbies[id]
	delete(r.lobbies, id)
	r.mu.Unlock()
	if ok {
		lob.Close()
		r.logger.WithField("lobby", id).Info("lobby destroyed")
	}
}

// Start runs the idle sweeper until Close.
func (r *Registry) Start() {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.deps.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.sweep(time.Now())
			}
		}
	}()
}

// sweep destroys abandoned lobbies: no subscribers and no activity inside
// the idle window. A lobby with live connections is never evicted.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var stale []uuid.UUID
	for id, lob := range r.lobbies {
		if lob.SubscriberCount() == 0 && now.Sub(lob.LastActivity()) >= r.deps.IdleTimeout {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.logger.WithField("lobby", id).Info("evicting idle lobby")
		r.DestroyLobby(id)
	}
}

// Close stops the sweeper and destroys every lobby.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.mu.Lock()
		started := r.started
		r.mu.Unlock()
		if started {
			<-r.done
		}
	})
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.lobbies))
	for id := range r.lobbies {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.DestroyLobby(id)
	}
}

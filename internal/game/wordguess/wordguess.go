// Package wordguess implements the describe-the-word party game: the
// streamer describes a hidden word and chat races to guess it. Guesses are
// matched with typo tolerance; points accumulate per viewer.
package wordguess

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/mstrand/partyhub/internal/game"
)

// Phase names.
const (
	PhaseSetup    = "Setup"
	PhasePlaying  = "Playing"
	PhaseGameOver = "GameOver"
)

// Admin command names.
const (
	CmdStartGame       = "StartGame"
	CmdPassWord        = "PassWord"
	CmdResetGame       = "ResetGame"
	CmdSetTargetPoints = "SetTargetPoints"
	CmdSetGameDuration = "SetGameDuration"
	CmdSetPointLimit   = "SetPointLimitEnabled"
	CmdSetTimeLimit    = "SetTimeLimitEnabled"
)

// Event type names.
const (
	EventWordChanged  = "WordChanged"
	EventPlayerScored = "PlayerScored"
	EventPhaseChanged = "GamePhaseChanged"
)

// WordChangedData is the payload of a WordChanged event.
type WordChangedData struct {
	Word string `json:"word"`
}

// PlayerScoredData carries a viewer's new total after scoring.
type PlayerScoredData struct {
	Player string `json:"player"`
	Points int    `json:"points"`
}

// PhaseChangedData is the payload of a GamePhaseChanged event.
type PhaseChangedData struct {
	NewPhase string `json:"new_phase"`
}

// Settings is the admin-tunable configuration. Setters are only legal in
// the Setup phase.
type Settings struct {
	TargetPoints        int  `json:"target_points"`
	GameDurationSeconds int  `json:"game_duration_seconds"`
	PointLimitEnabled   bool `json:"point_limit_enabled"`
	TimeLimitEnabled    bool `json:"time_limit_enabled"`
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		TargetPoints:        10,
		GameDurationSeconds: 300,
		PointLimitEnabled:   true,
		TimeLimitEnabled:    false,
	}
}

// ParseConfig decodes lobby-creation config into Settings, applying
// defaults for absent fields and validating the rest.
func ParseConfig(raw json.RawMessage) (Settings, error) {
	s := DefaultSettings()
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, &game.ConfigError{Field: "config", Reason: "malformed JSON"}
	}
	return s, validateSettings(s)
}

func validateSettings(s Settings) error {
	if s.TargetPoints < 1 {
		return &game.ConfigError{Field: "target_points", Reason: "must be at least 1"}
	}
	if s.GameDurationSeconds < 10 {
		return &game.ConfigError{Field: "game_duration_seconds", Reason: "must be at least 10"}
	}
	return nil
}

// WordSource supplies the word list. The content store satisfies this.
type WordSource interface {
	Words() []string
}

// State is the full client-visible snapshot.
type State struct {
	Phase                string         `json:"phase"`
	CurrentWord          string         `json:"current_word,omitempty"`
	Winner               string         `json:"winner,omitempty"`
	PlayerScores         map[string]int `json:"player_scores"`
	Settings             Settings       `json:"settings"`
	TimeRemainingSeconds *int           `json:"time_remaining_seconds,omitempty"`
}

// Engine holds the mutable game state. Not safe for concurrent use.
type Engine struct {
	rng    *rand.Rand
	now    func() time.Time
	source WordSource

	phase       string
	currentWord string
	winner      string
	scores      map[string]int
	usedWords   map[string]bool
	settings    Settings
	startedAt   time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRand injects a deterministic random source.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSettings overrides the default settings.
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// New returns an engine in the Setup phase drawing words from source.
func New(source WordSource, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		phase:     PhaseSetup,
		scores:    map[string]int{},
		usedWords: map[string]bool{},
		settings:  DefaultSettings(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		t := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(t, t^0x9e3779b97f4a7c15))
	}
	return e
}

// TypeID implements game.Engine.
func (e *Engine) TypeID() string { return game.TypeWordGuess }

// ApplyAdmin implements game.Engine.
func (e *Engine) ApplyAdmin(raw json.RawMessage) ([]game.Event, error) {
	cmd, err := game.DecodeAdminCommand(raw)
	if err != nil {
		return nil, err
	}
	switch cmd.Name {
	case CmdStartGame:
		return e.startGame()
	case CmdPassWord:
		return e.passWord()
	case CmdResetGame:
		return e.resetGame()
	case CmdSetTargetPoints:
		var p struct {
			Points int `json:"points"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmd.Name, Reason: "malformed payload"}
		}
		return e.updateSetting(cmd.Name, func(s *Settings) { s.TargetPoints = p.Points })
	case CmdSetGameDuration:
		var p struct {
			Seconds int `json:"seconds"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmd.Name, Reason: "malformed payload"}
		}
		return e.updateSetting(cmd.Name, func(s *Settings) { s.GameDurationSeconds = p.Seconds })
	case CmdSetPointLimit:
		var p struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmd.Name, Reason: "malformed payload"}
		}
		return e.updateSetting(cmd.Name, func(s *Settings) { s.PointLimitEnabled = p.Enabled })
	case CmdSetTimeLimit:
		var p struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmd.Name, Reason: "malformed payload"}
		}
		return e.updateSetting(cmd.Name, func(s *Settings) { s.TimeLimitEnabled = p.Enabled })
	default:
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmd.Name, Reason: game.ErrUnknownCommand.Error()}
	}
}

// ApplyChat implements game.Engine. A wrong guess is silently ignored;
// a correct guess scores a point and advances to the next word.
func (e *Engine) ApplyChat(username, text string) ([]game.Event, error) {
	if e.phase != PhasePlaying {
		return nil, game.ErrNotAcceptingVotes
	}
	if !game.IsGuessAcceptable(e.currentWord, text) {
		return nil, game.ErrIgnored
	}

	newScore := e.scores[username] + 1
	events := []game.Event{{
		Type: EventPlayerScored,
		Data: PlayerScoredData{Player: username, Points: newScore},
	}}

	if e.settings.PointLimitEnabled && newScore >= e.settings.TargetPoints {
		e.scores[username] = newScore
		e.phase = PhaseGameOver
		e.winner = username
		e.currentWord = ""
		return append(events, game.Event{
			Type: EventPhaseChanged,
			Data: PhaseChangedData{NewPhase: PhaseGameOver},
		}), nil
	}

	// Draw the replacement word before committing the score so a drained
	// word list rejects the guess without side effects.
	word, err := e.nextWord()
	if err != nil {
		return nil, err
	}
	e.scores[username] = newScore
	e.currentWord = word
	return append(events, game.Event{
		Type: EventWordChanged,
		Data: WordChangedData{Word: word},
	}), nil
}

func (e *Engine) startGame() ([]game.Event, error) {
	if e.phase != PhaseSetup && e.phase != PhaseGameOver {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdStartGame}
	}
	word, err := e.nextWord()
	if err != nil {
		return nil, err
	}
	e.phase = PhasePlaying
	e.currentWord = word
	e.winner = ""
	e.scores = map[string]int{}
	e.startedAt = e.now()
	return []game.Event{
		{Type: EventPhaseChanged, Data: PhaseChangedData{NewPhase: PhasePlaying}},
		{Type: EventWordChanged, Data: WordChangedData{Word: word}},
	}, nil
}

func (e *Engine) passWord() ([]game.Event, error) {
	if e.phase != PhasePlaying {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdPassWord}
	}
	word, err := e.nextWord()
	if err != nil {
		return nil, err
	}
	e.currentWord = word
	return []game.Event{{Type: EventWordChanged, Data: WordChangedData{Word: word}}}, nil
}

// resetGame returns to Setup and forgets scores and word history. Legal in
// every phase.
func (e *Engine) resetGame() ([]game.Event, error) {
	e.phase = PhaseSetup
	e.currentWord = ""
	e.winner = ""
	e.scores = map[string]int{}
	e.usedWords = map[string]bool{}
	return []game.Event{{Type: EventPhaseChanged, Data: PhaseChangedData{NewPhase: PhaseSetup}}}, nil
}

func (e *Engine) updateSetting(cmdName string, apply func(*Settings)) ([]game.Event, error) {
	if e.phase != PhaseSetup {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmdName, Reason: "settings can only change in Setup"}
	}
	next := e.settings
	apply(&next)
	if err := validateSettings(next); err != nil {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmdName, Reason: err.Error()}
	}
	e.settings = next
	return nil, nil
}

// nextWord draws a random unused word. The used set survives StartGame so
// consecutive games avoid repeats; it resets when the list is exhausted.
func (e *Engine) nextWord() (string, error) {
	words := e.source.Words()
	if len(words) == 0 {
		return "", &game.IllegalTransitionError{Phase: e.phase, Command: CmdStartGame, Reason: "no words available"}
	}
	fresh := make([]string, 0, len(words))
	for _, w := range words {
		if !e.usedWords[w] {
			fresh = append(fresh, w)
		}
	}
	if len(fresh) == 0 {
		e.usedWords = map[string]bool{}
		fresh = words
	}
	word := fresh[e.rng.IntN(len(fresh))]
	e.usedWords[word] = true
	return word, nil
}

// CheckExpiry ends a timed game whose clock has run out, returning the
// resulting events and true when the game just ended. The lobby calls this
// before every dispatch so the transition commits on its own and later
// commands are judged against the GameOver phase.
func (e *Engine) CheckExpiry() ([]game.Event, bool) {
	if e.phase != PhasePlaying || !e.settings.TimeLimitEnabled {
		return nil, false
	}
	elapsed := e.now().Sub(e.startedAt)
	if elapsed < time.Duration(e.settings.GameDurationSeconds)*time.Second {
		return nil, false
	}
	e.phase = PhaseGameOver
	e.currentWord = ""
	e.winner = e.leader()
	return []game.Event{{
		Type: EventPhaseChanged,
		Data: PhaseChangedData{NewPhase: PhaseGameOver},
	}}, true
}

// leader returns the player with the highest score, ties broken by
// username, or "No players" when nobody scored.
func (e *Engine) leader() string {
	best, bestScore := "", -1
	for player, score := range e.scores {
		if score > bestScore || (score == bestScore && player < best) {
			best, bestScore = player, score
		}
	}
	if best == "" {
		return "No players"
	}
	return best
}

// Snapshot implements game.Engine.
func (e *Engine) Snapshot() any {
	st := State{
		Phase:        e.phase,
		CurrentWord:  e.currentWord,
		Winner:       e.winner,
		PlayerScores: map[string]int{},
		Settings:     e.settings,
	}
	for p, s := range e.scores {
		st.PlayerScores[p] = s
	}
	if e.phase == PhasePlaying && e.settings.TimeLimitEnabled {
		remaining := e.settings.GameDurationSeconds - int(e.now().Sub(e.startedAt)/time.Second)
		if remaining < 0 {
			remaining = 0
		}
		st.TimeRemainingSeconds = &remaining
	}
	return st
}

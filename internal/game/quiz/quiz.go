// Package quiz implements the chat quiz game: viewers answer trivia
// questions in chat, with typo-tolerant matching and a short history of
// recent guesses the streamer can revoke to correct misfires.
package quiz

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

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
	CmdStartGame         = "StartGame"
	CmdPassQuestion      = "PassQuestion"
	CmdResetGame         = "ResetGame"
	CmdSetTargetPoints   = "SetTargetPoints"
	CmdSetGameDuration   = "SetGameDuration"
	CmdSetPointLimit     = "SetPointLimitEnabled"
	CmdSetTimeLimit      = "SetTimeLimitEnabled"
	CmdRemoveRecentGuess = "RemoveRecentGuess"
)

// Event type names.
const (
	EventQuestionChanged      = "QuestionChanged"
	EventPlayerScored         = "PlayerScored"
	EventPhaseChanged         = "GamePhaseChanged"
	EventRecentGuessesUpdated = "RecentGuessesUpdated"
)

// maxRecentGuesses bounds the revocable guess history.
const maxRecentGuesses = 5

// Question is one quiz entry from the content bank.
type Question struct {
	Text   string `json:"question"`
	Answer string `json:"answer"`
	Extra  string `json:"extra_info,omitempty"`
}

// Source supplies the question bank. The content store satisfies this
// through an adapter.
type Source interface {
	Questions() []Question
}

// RecentGuess is one revocable entry in the guess history.
type RecentGuess struct {
	ID            uuid.UUID `json:"id"`
	Player        string    `json:"player"`
	GuessedText   string    `json:"guessed_text"`
	WasCorrect    bool      `json:"was_correct"`
	CorrectAnswer string    `json:"correct_answer"`
	Question      string    `json:"question"`
	Timestamp     time.Time `json:"timestamp"`
}

// QuestionChangedData is the payload of a QuestionChanged event.
type QuestionChangedData struct {
	Question string `json:"question"`
	Extra    string `json:"extra_info,omitempty"`
}

// PlayerScoredData carries a viewer's new total after a score change.
type PlayerScoredData struct {
	Player string `json:"player"`
	Points int    `json:"points"`
}

// PhaseChangedData is the payload of a GamePhaseChanged event.
type PhaseChangedData struct {
	NewPhase string `json:"new_phase"`
}

// RecentGuessesData is the payload of a RecentGuessesUpdated event.
type RecentGuessesData struct {
	RecentGuesses []RecentGuess `json:"recent_guesses"`
}

// Settings is the admin-tunable configuration, changeable in Setup only.
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

// ParseConfig decodes lobby-creation config into Settings.
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

// State is the full client-visible snapshot. The current answer is included
// so the host overlay can show it; spectators only ever see the stream.
type State struct {
	Phase                string         `json:"phase"`
	CurrentQuestion      string         `json:"current_question,omitempty"`
	CurrentAnswer        string         `json:"current_answer,omitempty"`
	ExtraInfo            string         `json:"extra_info,omitempty"`
	Winner               string         `json:"winner,omitempty"`
	PlayerScores         map[string]int `json:"player_scores"`
	RecentGuesses        []RecentGuess  `json:"recent_guesses"`
	Settings             Settings       `json:"settings"`
	TimeRemainingSeconds *int           `json:"time_remaining_seconds,omitempty"`
}

// Engine holds the mutable game state. Not safe for concurrent use.
type Engine struct {
	rng    *rand.Rand
	now    func() time.Time
	source Source

	phase     string
	current   Question
	winner    string
	scores    map[string]int
	usedKeys  map[string]bool
	recent    []RecentGuess
	settings  Settings
	startedAt time.Time
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

// New returns an engine in the Setup phase drawing from source.
func New(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		phase:    PhaseSetup,
		scores:   map[string]int{},
		usedKeys: map[string]bool{},
		settings: DefaultSettings(),
		now:      time.Now,
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
func (e *Engine) TypeID() string { return game.TypeQuiz }

// ApplyAdmin implements game.Engine.
func (e *Engine) ApplyAdmin(raw json.RawMessage) ([]game.Event, error) {
	cmd, err := game.DecodeAdminCommand(raw)
	if err != nil {
		return nil, err
	}
	switch cmd.Name {
	case CmdStartGame:
		return e.startGame()
	case CmdPassQuestion:
		return e.passQuestion()
	case CmdResetGame:
		return e.resetGame()
	case CmdRemoveRecentGuess:
		var p struct {
			GuessID uuid.UUID `json:"guess_id"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmd.Name, Reason: "malformed payload"}
		}
		return e.removeRecentGuess(p.GuessID)
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

// ApplyChat implements game.Engine. Every guess while playing lands in the
// recent-guess history; a correct one also scores.
func (e *Engine) ApplyChat(username, text string) ([]game.Event, error) {
	if e.phase != PhasePlaying {
		return nil, game.ErrNotAcceptingVotes
	}

	correct := game.IsGuessAcceptable(e.current.Answer, text)
	newScore := e.scores[username] + 1
	terminal := correct && e.settings.PointLimitEnabled && newScore >= e.settings.TargetPoints

	// Draw the follow-up question before touching any state so a drained
	// question bank rejects the guess without side effects.
	var next Question
	if correct && !terminal {
		q, err := e.nextQuestion()
		if err != nil {
			return nil, err
		}
		next = q
	}

	e.pushRecent(RecentGuess{
		ID:            uuid.New(),
		Player:        username,
		GuessedText:   text,
		WasCorrect:    correct,
		CorrectAnswer: e.current.Answer,
		Question:      e.current.Text,
		Timestamp:     e.now(),
	})
	events := []game.Event{{
		Type: EventRecentGuessesUpdated,
		Data: RecentGuessesData{RecentGuesses: e.recentCopy()},
	}}
	if !correct {
		return events, nil
	}

	e.scores[username] = newScore
	events = append(events, game.Event{
		Type: EventPlayerScored,
		Data: PlayerScoredData{Player: username, Points: newScore},
	})

	if terminal {
		e.phase = PhaseGameOver
		e.winner = username
		e.current = Question{}
		return append(events, game.Event{
			Type: EventPhaseChanged,
			Data: PhaseChangedData{NewPhase: PhaseGameOver},
		}), nil
	}

	e.current = next
	return append(events, game.Event{
		Type: EventQuestionChanged,
		Data: QuestionChangedData{Question: next.Text, Extra: next.Extra},
	}), nil
}

func (e *Engine) startGame() ([]game.Event, error) {
	if e.phase != PhaseSetup && e.phase != PhaseGameOver {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdStartGame}
	}
	q, err := e.nextQuestion()
	if err != nil {
		return nil, err
	}
	e.phase = PhasePlaying
	e.current = q
	e.winner = ""
	e.scores = map[string]int{}
	e.recent = nil
	e.startedAt = e.now()
	return []game.Event{
		{Type: EventPhaseChanged, Data: PhaseChangedData{NewPhase: PhasePlaying}},
		{Type: EventQuestionChanged, Data: QuestionChangedData{Question: q.Text, Extra: q.Extra}},
	}, nil
}

func (e *Engine) passQuestion() ([]game.Event, error) {
	if e.phase != PhasePlaying {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdPassQuestion}
	}
	q, err := e.nextQuestion()
	if err != nil {
		return nil, err
	}
	e.current = q
	return []game.Event{{
		Type: EventQuestionChanged,
		Data: QuestionChangedData{Question: q.Text, Extra: q.Extra},
	}}, nil
}

func (e *Engine) resetGame() ([]game.Event, error) {
	e.phase = PhaseSetup
	e.current = Question{}
	e.winner = ""
	e.scores = map[string]int{}
	e.usedKeys = map[string]bool{}
	e.recent = nil
	return []game.Event{{Type: EventPhaseChanged, Data: PhaseChangedData{NewPhase: PhaseSetup}}}, nil
}

// removeRecentGuess drops the entry and, when it had scored, takes the
// point back (floor zero).
func (e *Engine) removeRecentGuess(id uuid.UUID) ([]game.Event, error) {
	idx := -1
	for i, g := range e.recent {
		if g.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdRemoveRecentGuess, Reason: "unknown guess id"}
	}
	removed := e.recent[idx]
	e.recent = append(e.recent[:idx], e.recent[idx+1:]...)

	events := []game.Event{{
		Type: EventRecentGuessesUpdated,
		Data: RecentGuessesData{RecentGuesses: e.recentCopy()},
	}}
	if removed.WasCorrect && e.scores[removed.Player] > 0 {
		e.scores[removed.Player]--
		events = append(events, game.Event{
			Type: EventPlayerScored,
			Data: PlayerScoredData{Player: removed.Player, Points: e.scores[removed.Player]},
		})
	}
	return events, nil
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

// pushRecent inserts at the head and truncates to maxRecentGuesses.
func (e *Engine) pushRecent(g RecentGuess) {
	e.recent = append([]RecentGuess{g}, e.recent...)
	if len(e.recent) > maxRecentGuesses {
		e.recent = e.recent[:maxRecentGuesses]
	}
}

func (e *Engine) recentCopy() []RecentGuess {
	out := make([]RecentGuess, len(e.recent))
	copy(out, e.recent)
	return out
}

// nextQuestion draws a random unasked question, keyed by question text.
// The used set survives StartGame and resets when the bank is exhausted.
func (e *Engine) nextQuestion() (Question, error) {
	bank := e.source.Questions()
	if len(bank) == 0 {
		return Question{}, &game.IllegalTransitionError{Phase: e.phase, Command: CmdStartGame, Reason: "no questions available"}
	}
	fresh := make([]Question, 0, len(bank))
	for _, q := range bank {
		if !e.usedKeys[q.Text] {
			fresh = append(fresh, q)
		}
	}
	if len(fresh) == 0 {
		e.usedKeys = map[string]bool{}
		fresh = bank
	}
	q := fresh[e.rng.IntN(len(fresh))]
	e.usedKeys[q.Text] = true
	return q, nil
}

// CheckExpiry ends a timed game whose clock has run out, returning the
// resulting events and true when the game just ended. The lobby calls this
// before every dispatch so the transition commits on its own and later
// commands are judged against the GameOver phase.
func (e *Engine) CheckExpiry() ([]game.Event, bool) {
	if e.phase != PhasePlaying || !e.settings.TimeLimitEnabled {
		return nil, false
	}
	if e.now().Sub(e.startedAt) < time.Duration(e.settings.GameDurationSeconds)*time.Second {
		return nil, false
	}
	e.phase = PhaseGameOver
	e.current = Question{}
	e.winner = e.leader()
	return []game.Event{{
		Type: EventPhaseChanged,
		Data: PhaseChangedData{NewPhase: PhaseGameOver},
	}}, true
}

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
		Phase:           e.phase,
		CurrentQuestion: e.current.Text,
		CurrentAnswer:   e.current.Answer,
		ExtraInfo:       e.current.Extra,
		Winner:          e.winner,
		PlayerScores:    map[string]int{},
		RecentGuesses:   e.recentCopy(),
		Settings:        e.settings,
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

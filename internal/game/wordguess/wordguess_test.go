package wordguess

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrand/partyhub/internal/game"
)

type fakeSource struct {
	words []string
}

func (f *fakeSource) Words() []string { return f.words }

func newTestEngine(t *testing.T, words []string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(7, 11)))}, opts...)
	return New(&fakeSource{words: words}, opts...)
}

func admin(t *testing.T, e *Engine, name string, payload any) ([]game.Event, error) {
	t.Helper()
	cmd := game.AdminCommand{Name: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		cmd.Payload = raw
	}
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return e.ApplyAdmin(raw)
}

func mustAdmin(t *testing.T, e *Engine, name string, payload any) []game.Event {
	t.Helper()
	evs, err := admin(t, e, name, payload)
	require.NoError(t, err)
	return evs
}

func snapshot(t *testing.T, e *Engine) State {
	t.Helper()
	st, ok := e.Snapshot().(State)
	require.True(t, ok)
	return st
}

func TestParseConfig(t *testing.T) {
	s, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	s, err = ParseConfig(json.RawMessage(`{"target_points": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, s.TargetPoints)
	assert.Equal(t, 300, s.GameDurationSeconds)

	_, err = ParseConfig(json.RawMessage(`{"target_points": 0}`))
	var cfgErr *game.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "target_points", cfgErr.Field)

	_, err = ParseConfig(json.RawMessage(`{"game_duration_seconds": 5}`))
	require.ErrorAs(t, err, &cfgErr)
}

func TestStartGameDealsAWord(t *testing.T) {
	e := newTestEngine(t, []string{"giraff", "lampa", "cykel"})
	evs := mustAdmin(t, e, CmdStartGame, nil)

	require.Len(t, evs, 2)
	assert.Equal(t, EventPhaseChanged, evs[0].Type)
	assert.Equal(t, EventWordChanged, evs[1].Type)

	st := snapshot(t, e)
	assert.Equal(t, PhasePlaying, st.Phase)
	assert.Contains(t, []string{"giraff", "lampa", "cykel"}, st.CurrentWord)
}

func TestStartGameWithEmptyListIsIllegal(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := admin(t, e, CmdStartGame, nil)
	require.Error(t, err)
	assert.True(t, game.IsIllegalTransition(err))
	assert.Equal(t, PhaseSetup, snapshot(t, e).Phase)
}

func TestCorrectGuessScoresAndAdvances(t *testing.T) {
	e := newTestEngine(t, []string{"giraff", "lampa"})
	mustAdmin(t, e, CmdStartGame, nil)
	first := snapshot(t, e).CurrentWord

	evs, err := e.ApplyChat("alice", first)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, EventPlayerScored, evs[0].Type)
	assert.Equal(t, PlayerScoredData{Player: "alice", Points: 1}, evs[0].Data)
	assert.Equal(t, EventWordChanged, evs[1].Type)

	st := snapshot(t, e)
	assert.Equal(t, 1, st.PlayerScores["alice"])
	assert.NotEqual(t, first, st.CurrentWord, "used word must not repeat")
}

func TestFuzzyGuessAccepted(t *testing.T) {
	e := newTestEngine(t, []string{"hackspett"})
	mustAdmin(t, e, CmdStartGame, nil)

	evs, err := e.ApplyChat("bob", "hakspett")
	require.NoError(t, err)
	assert.Equal(t, EventPlayerScored, evs[0].Type)
}

func TestWrongGuessIgnored(t *testing.T) {
	e := newTestEngine(t, []string{"giraff"})
	mustAdmin(t, e, CmdStartGame, nil)
	before := snapshot(t, e)

	_, err := e.ApplyChat("alice", "helt fel")
	require.ErrorIs(t, err, game.ErrIgnored)
	assert.Equal(t, before, snapshot(t, e))
}

func TestGuessBeforeStartNotAccepted(t *testing.T) {
	e := newTestEngine(t, []string{"giraff"})
	_, err := e.ApplyChat("alice", "giraff")
	require.ErrorIs(t, err, game.ErrIgnored)
}

func TestReachingTargetEndsGame(t *testing.T) {
	words := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		words = append(words, fmt.Sprintf("ordnummer%d", i))
	}
	e := newTestEngine(t, words, WithSettings(Settings{
		TargetPoints:        2,
		GameDurationSeconds: 300,
		PointLimitEnabled:   true,
	}))
	mustAdmin(t, e, CmdStartGame, nil)

	_, err := e.ApplyChat("alice", snapshot(t, e).CurrentWord)
	require.NoError(t, err)
	evs, err := e.ApplyChat("alice", snapshot(t, e).CurrentWord)
	require.NoError(t, err)

	require.Len(t, evs, 2)
	assert.Equal(t, EventPhaseChanged, evs[1].Type)
	st := snapshot(t, e)
	assert.Equal(t, PhaseGameOver, st.Phase)
	assert.Equal(t, "alice", st.Winner)
	assert.Empty(t, st.CurrentWord)
}

func TestPassWordOnlyWhilePlaying(t *testing.T) {
	e := newTestEngine(t, []string{"giraff", "lampa"})

	_, err := admin(t, e, CmdPassWord, nil)
	require.Error(t, err)
	assert.True(t, game.IsIllegalTransition(err))

	mustAdmin(t, e, CmdStartGame, nil)
	first := snapshot(t, e).CurrentWord
	evs := mustAdmin(t, e, CmdPassWord, nil)
	require.Len(t, evs, 1)
	assert.Equal(t, EventWordChanged, evs[0].Type)
	assert.NotEqual(t, first, snapshot(t, e).CurrentWord)
}

func TestSettersOnlyInSetup(t *testing.T) {
	e := newTestEngine(t, []string{"giraff"})

	mustAdmin(t, e, CmdSetTargetPoints, map[string]int{"points": 5})
	assert.Equal(t, 5, snapshot(t, e).Settings.TargetPoints)

	_, err := admin(t, e, CmdSetTargetPoints, map[string]int{"points": 0})
	require.Error(t, err)
	assert.True(t, game.IsIllegalTransition(err))
	assert.Equal(t, 5, snapshot(t, e).Settings.TargetPoints)

	mustAdmin(t, e, CmdStartGame, nil)
	_, err = admin(t, e, CmdSetTargetPoints, map[string]int{"points": 7})
	require.Error(t, err)
	assert.True(t, game.IsIllegalTransition(err))
	assert.Equal(t, 5, snapshot(t, e).Settings.TargetPoints)
}

func TestResetGameClearsEverything(t *testing.T) {
	e := newTestEngine(t, []string{"giraff", "lampa"})
	mustAdmin(t, e, CmdStartGame, nil)
	_, err := e.ApplyChat("alice", snapshot(t, e).CurrentWord)
	require.NoError(t, err)

	evs := mustAdmin(t, e, CmdResetGame, nil)
	require.Len(t, evs, 1)
	assert.Equal(t, PhaseChangedData{NewPhase: PhaseSetup}, evs[0].Data)

	st := snapshot(t, e)
	assert.Equal(t, PhaseSetup, st.Phase)
	assert.Empty(t, st.PlayerScores)
	assert.Empty(t, st.CurrentWord)
}

func TestTimeLimitEndsGame(t *testing.T) {
	clock := time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC)
	e := newTestEngine(t, []string{"giraff", "lampa"},
		WithClock(func() time.Time { return clock }),
		WithSettings(Settings{
			TargetPoints:        10,
			GameDurationSeconds: 60,
			PointLimitEnabled:   false,
			TimeLimitEnabled:    true,
		}))
	mustAdmin(t, e, CmdStartGame, nil)

	_, err := e.ApplyChat("alice", snapshot(t, e).CurrentWord)
	require.NoError(t, err)

	_, over := e.CheckExpiry()
	assert.False(t, over, "clock has not run out yet")

	clock = clock.Add(61 * time.Second)
	evs, over := e.CheckExpiry()
	require.True(t, over)
	require.Len(t, evs, 1)
	assert.Equal(t, PhaseChangedData{NewPhase: PhaseGameOver}, evs[0].Data)

	st := snapshot(t, e)
	assert.Equal(t, PhaseGameOver, st.Phase)
	assert.Equal(t, "alice", st.Winner)

	// The ended game now judges commands itself: guesses are refused and
	// a setter fails loudly instead of vanishing.
	_, err = e.ApplyChat("bob", "whatever")
	require.ErrorIs(t, err, game.ErrIgnored)
	_, err = admin(t, e, CmdSetTargetPoints, map[string]int{"points": 3})
	require.Error(t, err)
	assert.True(t, game.IsIllegalTransition(err))
}

func TestDrainedWordListRejectsGuessUntouched(t *testing.T) {
	src := &fakeSource{words: []string{"giraff"}}
	e := New(src, WithRand(rand.New(rand.NewPCG(7, 11))))
	mustAdmin(t, e, CmdStartGame, nil)
	before := snapshot(t, e)

	// The source dries up mid-game, as happens when a content refresh
	// installs an empty word list.
	src.words = nil
	_, err := e.ApplyChat("alice", "giraff")
	require.Error(t, err)
	assert.True(t, game.IsIllegalTransition(err))
	assert.Equal(t, before, snapshot(t, e), "a rejected guess must leave no trace")
}

func TestWordListExhaustionRecycles(t *testing.T) {
	e := newTestEngine(t, []string{"giraff"})
	mustAdmin(t, e, CmdStartGame, nil)
	require.Equal(t, "giraff", snapshot(t, e).CurrentWord)

	// Only one word exists, so passing must recycle it.
	mustAdmin(t, e, CmdPassWord, nil)
	assert.Equal(t, "giraff", snapshot(t, e).CurrentWord)
}

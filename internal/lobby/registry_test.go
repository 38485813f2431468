package lobby

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrand/partyhub/internal/game"
	"github.com/mstrand/partyhub/internal/game/clipqueue"
	"github.com/mstrand/partyhub/internal/game/quiz"
)

type staticWords struct{}

func (staticWords) Words() []string { return []string{"giraff", "lampa", "cykel"} }

type staticQuestions struct{}

func (staticQuestions) Questions() []quiz.Question {
	return []quiz.Question{{Text: "Hur många ben har en spindel?", Answer: "åtta"}}
}

func testDeps() Deps {
	return Deps{
		Logger:    testLogger(),
		Words:     staticWords{},
		Questions: staticQuestions{},
		Resolver:  clipqueue.PassthroughResolver{},
		MintToken: func(lobbyID uuid.UUID) (string, error) {
			return "token-" + lobbyID.String(), nil
		},
		VerifyToken: func(lobbyID uuid.UUID, token string) bool {
			return token == "token-"+lobbyID.String()
		},
	}
}

func TestCreateLobbyForEveryGameType(t *testing.T) {
	r := NewRegistry(testDeps())
	defer r.Close()

	for _, typ := range game.KnownTypes() {
		lob, token, err := r.CreateLobby(typ, nil)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, lob.GameTypeID)
		assert.NotEmpty(t, token)

		got, ok := r.Get(lob.ID)
		require.True(t, ok)
		assert.Same(t, lob, got)
	}
	assert.Len(t, r.List(), len(game.KnownTypes()))
}

func TestCreateLobbyUnknownType(t *testing.T) {
	r := NewRegistry(testDeps())
	defer r.Close()

	_, _, err := r.CreateLobby("Backgammon", nil)
	assert.ErrorIs(t, err, ErrUnknownGameType)
}

func TestCreateLobbyDisabledType(t *testing.T) {
	deps := testDeps()
	deps.EnabledTypes = []string{game.TypeQuiz}
	r := NewRegistry(deps)
	defer r.Close()

	_, _, err := r.CreateLobby(game.TypeDealNoDeal, nil)
	assert.ErrorIs(t, err, ErrGameTypeDisabled)

	_, _, err = r.CreateLobby(game.TypeQuiz, nil)
	assert.NoError(t, err)
}

func TestEnabledTypesAllKeyword(t *testing.T) {
	deps := testDeps()
	deps.EnabledTypes = []string{"all"}
	r := NewRegistry(deps)
	defer r.Close()

	for _, typ := range game.KnownTypes() {
		_, _, err := r.CreateLobby(typ, nil)
		assert.NoError(t, err, typ)
	}
}

func TestCreateLobbyRejectsBadConfig(t *testing.T) {
	r := NewRegistry(testDeps())
	defer r.Close()

	_, _, err := r.CreateLobby(game.TypeWordGuess, json.RawMessage(`{"target_points":0}`))
	var cfgErr *game.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMintedTokenAuthorizesAdmin(t *testing.T) {
	r := NewRegistry(testDeps())
	defer r.Close()

	lob, token, err := r.CreateLobby(game.TypeWordGuess, nil)
	require.NoError(t, err)

	err = lob.DispatchAdmin("forged", game.TypeWordGuess, json.RawMessage(`{"name":"StartGame"}`))
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = lob.DispatchAdmin(token, game.TypeWordGuess, json.RawMessage(`{"name":"StartGame"}`))
	assert.NoError(t, err)
}

func TestDestroyLobbyIsIdempotent(t *testing.T) {
	r := NewRegistry(testDeps())
	defer r.Close()

	lob, _, err := r.CreateLobby(game.TypeClipQueue, nil)
	require.NoError(t, err)

	r.DestroyLobby(lob.ID)
	r.DestroyLobby(lob.ID)

	_, ok := r.Get(lob.ID)
	assert.False(t, ok)
	assert.True(t, lob.Closed())
}

func TestSweepEvictsIdleLobbies(t *testing.T) {
	deps := testDeps()
	deps.IdleTimeout = time.Hour
	r := NewRegistry(deps)
	defer r.Close()

	idle, _, err := r.CreateLobby(game.TypeClipQueue, nil)
	require.NoError(t, err)
	busy, _, err := r.CreateLobby(game.TypeClipQueue, nil)
	require.NoError(t, err)

	r.sweep(time.Now())
	_, ok := r.Get(idle.ID)
	assert.True(t, ok, "not idle long enough yet")

	idle.mu.Lock()
	idle.lastActivity = time.Now().Add(-2 * time.Hour)
	idle.mu.Unlock()
	busy.DispatchChat("alice", "!clip dQw4w9WgXcQ")

	r.sweep(time.Now())
	_, ok = r.Get(idle.ID)
	assert.False(t, ok)
	_, ok = r.Get(busy.ID)
	assert.True(t, ok, "recent activity keeps the lobby alive")

	// A lobby with a live subscriber survives regardless of activity age.
	watched, _, err := r.CreateLobby(game.TypeClipQueue, nil)
	require.NoError(t, err)
	_, err = watched.Subscribe(NewSubscriber())
	require.NoError(t, err)
	watched.mu.Lock()
	watched.lastActivity = time.Now().Add(-2 * time.Hour)
	watched.mu.Unlock()

	r.sweep(time.Now())
	_, ok = r.Get(watched.ID)
	assert.True(t, ok, "live connections block eviction")
}

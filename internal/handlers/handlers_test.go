// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrand/partyhub/internal/auth"
	"github.com/mstrand/partyhub/internal/content"
	"github.com/mstrand/partyhub/internal/game/clipqueue"
	"github.com/mstrand/partyhub/internal/lobby"
)

const testAPIKey = "operator-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := content.NewStore(context.Background(), content.Config{Source: content.SourceNone}, logger)
	require.NoError(t, err)

	registry := lobby.NewRegistry(lobby.Deps{
		Logger:    logger,
		Words:     store,
		Questions: store,
		Resolver:  clipqueue.PassthroughResolver{},
		MintToken: func(lobbyID uuid.UUID) (string, error) {
			return "token-" + lobbyID.String(), nil
		},
		VerifyToken: func(lobbyID uuid.UUID, token string) bool {
			return token == "token-"+lobbyID.String()
		},
	})
	t.Cleanup(registry.Close)

	hash, err := auth.HashAPIKey(testAPIKey)
	require.NoError(t, err)

	return &Server{
		Logger:     logger,
		Registry:   registry,
		Content:    store,
		APIKeyHash: hash,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateLobby(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	w := doJSON(t, h, "POST", "/api/lobby", `{"game_type_id":"WordGuess"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createLobbyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.LobbyID)
	assert.NotEmpty(t, resp.AdminToken)
	assert.Equal(t, "WordGuess", resp.GameTypeID)

	_, ok := s.Registry.Get(resp.LobbyID)
	assert.True(t, ok)
}

func TestCreateLobbyWithConfig(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	w := doJSON(t, h, "POST", "/api/lobby", `{"game_type_id":"WordGuess","config":{"target_points":3}}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateLobbyRejections(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	tests := []struct {
		name string
		body string
	}{
		{"unknown type", `{"game_type_id":"Bingo"}`},
		{"invalid config", `{"game_type_id":"WordGuess","config":{"target_points":0}}`},
		{"malformed body", `{"game_type_id":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, "POST", "/api/lobby", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCreateLobbyDisabledType(t *testing.T) {
	s := newTestServer(t)
	logger := s.Logger
	registry := lobby.NewRegistry(lobby.Deps{
		Logger:       logger,
		Words:        s.Content,
		Questions:    s.Content,
		Resolver:     clipqueue.PassthroughResolver{},
		MintToken:    func(uuid.UUID) (string, error) { return "t", nil },
		VerifyToken:  func(uuid.UUID, string) bool { return true },
		EnabledTypes: []string{"Quiz"},
	})
	t.Cleanup(registry.Close)
	s.Registry = registry

	w := doJSON(t, s.Routes(), "POST", "/api/lobby", `{"game_type_id":"WordGuess"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListLobbies(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	w := doJSON(t, h, "GET", "/api/lobby", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	for _, typ := range []string{"WordGuess", "Quiz"} {
		_, _, err := s.Registry.CreateLobby(typ, nil)
		require.NoError(t, err)
	}

	w = doJSON(t, h, "GET", "/api/lobby", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out []lobbySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out, 2)
}

func TestRefreshContentAuth(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	w := doJSON(t, h, "POST", "/api/content/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	hdr := http.Header{}
	hdr.Set("Authorization", "ApiKey wrong-key")
	w = doJSON(t, h, "POST", "/api/content/refresh", "", hdr)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	hdr.Set("Authorization", fmt.Sprintf("ApiKey %s", testAPIKey))
	w = doJSON(t, h, "POST", "/api/content/refresh", "", hdr)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var counts map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	assert.Positive(t, counts["words"])
	assert.Positive(t, counts["questions"])
}

func TestRefreshContentDisabled(t *testing.T) {
	s := newTestServer(t)
	s.APIKeyHash = ""

	hdr := http.Header{}
	hdr.Set("Authorization", "ApiKey "+testAPIKey)
	w := doJSON(t, s.Routes(), "POST", "/api/content/refresh", "", hdr)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Routes(), "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

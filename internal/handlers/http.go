// Package handlers exposes the HTTP surface: lobby creation and listing,
// the content refresh endpoint, and the lobby WebSocket.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mstrand/partyhub/internal/auth"
	"github.com/mstrand/partyhub/internal/content"
	"github.com/mstrand/partyhub/internal/game"
	"github.com/mstrand/partyhub/internal/lobby"
	"github.com/mstrand/partyhub/internal/middleware"
)

// Server bundles the dependencies of every HTTP handler.
type Server struct {
	Logger   *logrus.Logger
	Registry *lobby.Registry
	Content  *content.Store

	// APIKeyHash is the Argon2id hash of the operator API key. Empty
	// disables the operator endpoints.
	APIKeyHash string
}

// Routes builds the full handler tree, wrapped in request logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/lobby", s.handleCreateLobby)
	mux.HandleFunc("GET /api/lobby", s.handleListLobbies)
	mux.HandleFunc("POST /api/content/refresh", s.handleRefreshContent)
	mux.HandleFunc("GET /ws", s.handleLobbyWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	return middleware.LogMiddleware(s.Logger)(mux)
}

type createLobbyRequest struct {
	GameTypeID string          `json:"game_type_id"`
	Config     json.RawMessage `json:"config,omitempty"`
}

type createLobbyResponse struct {
	LobbyID    uuid.UUID `json:"lobby_id"`
	AdminToken string    `json:"admin_token"`
	GameTypeID string    `json:"game_type_id"`
}

func (s *Server) handleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	lob, token, err := s.Registry.CreateLobby(req.GameTypeID, req.Config)
	if err != nil {
		var cfgErr *game.ConfigError
		switch {
		case errors.Is(err, lobby.ErrUnknownGameType), errors.Is(err, lobby.ErrGameTypeDisabled):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.Logger.Errorf("create lobby: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create lobby")
		}
		return
	}

	writeJSON(w, http.StatusCreated, createLobbyResponse{
		LobbyID:    lob.ID,
		AdminToken: token,
		GameTypeID: lob.GameTypeID,
	})
}

type lobbySummary struct {
	LobbyID        uuid.UUID `json:"lobby_id"`
	GameTypeID     string    `json:"game_type_id"`
	Subscribers    int       `json:"subscribers"`
	SequenceNumber uint64    `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Server) handleListLobbies(w http.ResponseWriter, r *http.Request) {
	lobbies := s.Registry.List()
	out := make([]lobbySummary, 0, len(lobbies))
	for _, lob := range lobbies {
		out = append(out, lobbySummary{
			LobbyID:        lob.ID,
			GameTypeID:     lob.GameTypeID,
			Subscribers:    lob.SubscriberCount(),
			SequenceNumber: lob.Seq(),
			CreatedAt:      lob.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRefreshContent(w http.ResponseWriter, r *http.Request) {
	if s.APIKeyHash == "" {
		writeError(w, http.StatusForbidden, "operator endpoints are disabled")
		return
	}
	key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "ApiKey ")
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing ApiKey authorization")
		return
	}
	match, err := auth.VerifyAPIKey(strings.TrimSpace(key), s.APIKeyHash)
	if err != nil || !match {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	if err := s.Content.Refresh(r.Context()); err != nil {
		s.Logger.Errorf("content refresh: %v", err)
		writeError(w, http.StatusBadGateway, "content refresh failed")
		return
	}
	words, questions := s.Content.Counts()
	writeJSON(w, http.StatusOK, map[string]int{"words": words, "questions": questions})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

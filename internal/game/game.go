// Package game defines the contract shared by every party game engine.
//
// An Engine is a pure state machine: it is never called concurrently (the
// owning lobby serializes all mutations) and every transition either returns
// the events it produced or an error describing why nothing changed.
package game

import "encoding/json"

// Game type identifiers form a closed set. Adding a game means adding a
// constant here and a case to the registry factory.
const (
	TypeDealNoDeal = "DealNoDeal"
	TypeWordGuess  = "WordGuess"
	TypeQuiz       = "Quiz"
	TypeClipQueue  = "ClipQueue"
)

// KnownTypes lists every game type this build can host, in display order.
func KnownTypes() []string {
	return []string{TypeDealNoDeal, TypeWordGuess, TypeQuiz, TypeClipQueue}
}

// IsKnownType reports whether id names a game type in the closed set.
func IsKnownType(id string) bool {
	switch id {
	case TypeDealNoDeal, TypeWordGuess, TypeQuiz, TypeClipQueue:
		return true
	}
	return false
}

// Event is a fine-grained notification produced by an engine transition.
// Data must be JSON-serializable; the lobby stamps the sequence number.
type Event struct {
	Type string
	Data any
}

// Engine is implemented by each game's state machine.
//
// ApplyAdmin and ApplyChat return the events the mutation produced. A nil
// error means the mutation was accepted and state may have changed; any
// error means state is untouched. Snapshot returns the full public state
// for FullStateUpdate frames and must be safe to marshal at any time.
type Engine interface {
	// TypeID returns the engine's game type identifier.
	TypeID() string

	// ApplyAdmin applies a game-specific admin command given as raw JSON.
	ApplyAdmin(cmd json.RawMessage) ([]Event, error)

	// ApplyChat applies one chat message from the named viewer.
	ApplyChat(username, text string) ([]Event, error)

	// Snapshot returns the complete client-visible state.
	Snapshot() any
}

// Expirer is implemented by engines with a timed phase. CheckExpiry ends
// the game when its clock has run out, returning the resulting events and
// whether a transition happened. The lobby calls it under the same
// serialization as the Engine methods, before every dispatch, and commits
// the transition as its own mutation.
type Expirer interface {
	CheckExpiry() ([]Event, bool)
}

// ChatPreparer is implemented by engines whose chat handling depends on a
// slow external lookup. PrepareChat runs outside the lobby's dispatch
// serialization and must not read or mutate engine state; the returned
// apply closure is invoked under the same serialization as ApplyChat and
// carries the lookup result into the mutation. A nil error with a nil
// closure is never returned; errors follow the ApplyChat conventions.
type ChatPreparer interface {
	PrepareChat(username, text string) (func() ([]Event, error), error)
}

package game

import (
	"errors"
	"fmt"
)

// ErrIgnored is returned by ApplyChat for input that carries no meaning in
// the current state (not a vote token, not a recognized command). The caller
// drops the message silently.
var ErrIgnored = errors.New("chat input ignored")

// ErrNotAcceptingVotes is returned by ApplyChat when the input was a valid
// vote but the game is not in a voting phase. Wraps ErrIgnored so lobbies
// treat both the same way.
var ErrNotAcceptingVotes = fmt.Errorf("not accepting votes: %w", ErrIgnored)

// IllegalTransitionError reports an admin command that is not legal in the
// engine's current phase. State is guaranteed unchanged.
type IllegalTransitionError struct {
	Phase   string
	Command string
	Reason  string
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("command %q is illegal in phase %q: %s", e.Command, e.Phase, e.Reason)
	}
	return fmt.Sprintf("command %q is illegal in phase %q", e.Command, e.Phase)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var ite *IllegalTransitionError
	return errors.As(err, &ite)
}

// ConfigError reports invalid game configuration at lobby creation time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Reason)
}

// ErrUnknownCommand is wrapped into IllegalTransitionError by engines when
// the command name itself is not recognized.
var ErrUnknownCommand = errors.New("unknown admin command")

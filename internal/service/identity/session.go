package identity

import (
	"errors"
	"fmt"

	"storefront/internal/domain"
)

type State int

const (
	StateAnonymous State = iota + 1
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned for a state change the session does not allow.
var ErrInvalidTransition = errors.New("invalid identity transition")

// Session tracks which cart a caller currently owns. At any instant it
// points at exactly one cart.
type Session struct {
	state     State
	sessionID string
	userID    string
}

func NewAnonymousSession(sessionID string) *Session {
	return &Session{state: StateAnonymous, sessionID: sessionID}
}

func NewAuthenticatedSession(userID string) *Session {
	return &Session{state: StateAuthenticated, userID: userID}
}

func (s *Session) State() State { return s.state }

func (s *Session) UserID() string { return s.userID }

// Cart returns the ref of the cart owned in the current state. While
// authenticating the anonymous cart is still the owner.
func (s *Session) Cart() domain.CartRef {
	if s.state == StateAuthenticated {
		return domain.AccountCart(s.userID)
	}
	return domain.AnonymousCart(s.sessionID)
}

func (s *Session) beginAuth() error {
	if s.state != StateAnonymous {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, StateAuthenticating)
	}
	s.state = StateAuthenticating
	return nil
}

func (s *Session) completeAuth(userID string) {
	s.state = StateAuthenticated
	s.userID = userID
}

func (s *Session) abortAuth() {
	s.state = StateAnonymous
}

func (s *Session) logout(sessionID string) error {
	if s.state != StateAuthenticated {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, StateAnonymous)
	}
	s.state = StateAnonymous
	s.userID = ""
	s.sessionID = sessionID
	return nil
}

package chatrelay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Command is the kind of an inbound client frame.
type Command string

// Client commands. Only CONNECT and SEND carry credentials that are checked.
const (
	CommandConnect     Command = "CONNECT"
	CommandSend        Command = "SEND"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandDisconnect  Command = "DISCONNECT"
)

const bearerScheme = "Bearer "

// Session is the per-connection state shared by the gate and the transport.
// The identity is bound on the first successful authentication and never
// changes afterwards.
type Session struct {
	id string

	mu       sync.RWMutex
	identity string
}

// NewSession creates a session with a random id.
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the bound identity, or "" before authentication.
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// bind attaches identity to the session. Re-binding the same identity is a
// no-op; a different identity is refused.
func (s *Session) bind(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != "" && s.identity != identity {
		return NewError(ErrCodeUnauthorized, "credential does not match session identity")
	}
	s.identity = identity
	return nil
}

// AuthGate authenticates CONNECT and SEND frames with a bearer credential
// and binds the resolved identity to the session.
type AuthGate struct {
	validator CredentialValidator
	logger    Logger
}

// NewAuthGate creates a gate backed by validator.
func NewAuthGate(validator CredentialValidator, logger Logger) (*AuthGate, error) {
	if validator == nil {
		return nil, NewError(ErrCodeConfiguration, "CredentialValidator is required")
	}
	if logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}
	return &AuthGate{validator: validator, logger: logger}, nil
}

// Inspect checks one inbound frame. A nil return means the frame may be
// forwarded unchanged; any error is UNAUTHORIZED and the frame must be
// rejected.
func (g *AuthGate) Inspect(ctx context.Context, cmd Command, authorization string, sess *Session) error {
	if cmd != CommandConnect && cmd != CommandSend {
		return nil
	}

	token, ok := strings.CutPrefix(authorization, bearerScheme)
	if !ok || strings.TrimSpace(token) == "" {
		return NewError(ErrCodeUnauthorized, "missing or malformed credential")
	}

	identity, err := g.validator.Validate(ctx, strings.TrimSpace(token))
	if err != nil {
		g.logger.Warnf("Credential rejected: session=%s, command=%s, error=%v", sess.ID(), cmd, err)
		return NewError(ErrCodeUnauthorized, fmt.Sprintf("invalid credential: %v", err))
	}
	if identity == "" {
		return NewError(ErrCodeUnauthorized, "invalid credential: no identity")
	}

	if err := sess.bind(identity); err != nil {
		g.logger.Warnf("Identity change refused: session=%s, command=%s", sess.ID(), cmd)
		return err
	}

	g.logger.Debugf("Frame authorized: session=%s, command=%s, identity=%s", sess.ID(), cmd, identity)
	return nil
}

package firebase

import (
	"context"
	"sync"
	"time"

	"freelancehub/internal/domain/service"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
)

// TokenVerifier checks an ID token and returns its subject.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

// TokenAuthSource is the auth state of one connected client. It starts from
// a verified token, expires with it and can be refreshed with a new token.
type TokenAuthSource struct {
	verifier TokenVerifier

	mu        sync.Mutex
	state     service.AuthState
	listeners map[int]func(service.AuthState)
	nextID    int
	expiry    *time.Timer
}

var _ service.AuthSource = (*TokenAuthSource)(nil)

func NewTokenAuthSource(verifier TokenVerifier) *TokenAuthSource {
	return &TokenAuthSource{
		verifier:  verifier,
		listeners: make(map[int]func(service.AuthState)),
	}
}

// OnAuthStateChanged registers fn and calls it with the current state.
func (s *TokenAuthSource) OnAuthStateChanged(fn func(service.AuthState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	state := s.state
	s.mu.Unlock()

	go fn(state)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SignIn verifies token and switches to its user.
func (s *TokenAuthSource) SignIn(ctx context.Context, token string) (string, error) {
	identity, err := s.verify(ctx, token)
	if err != nil {
		return "", err
	}
	s.adopt(identity)
	return identity.UID, nil
}

// Refresh extends the session with a newer token of the same user. A token
// of anyone else is rejected and leaves the state untouched.
func (s *TokenAuthSource) Refresh(ctx context.Context, token, userID string) error {
	identity, err := s.verify(ctx, token)
	if err != nil {
		return err
	}
	if identity.UID != userID {
		return errors.Forbidden("Token belongs to another user", nil)
	}
	s.adopt(identity)
	return nil
}

func (s *TokenAuthSource) verify(ctx context.Context, token string) (*Identity, error) {
	identity, err := s.verifier.VerifyToken(ctx, token)
	if err != nil {
		logger.Warn("Token verification failed: %v", err)
		return nil, errors.Unauthorized("Invalid token", err)
	}
	return identity, nil
}

func (s *TokenAuthSource) adopt(identity *Identity) {
	s.mu.Lock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if ttl := time.Until(identity.Expires); ttl > 0 {
		s.expiry = time.AfterFunc(ttl, func() {
			logger.Info("Token for %s expired", identity.UID)
			s.SignOut()
		})
	}
	s.mu.Unlock()

	s.publish(service.AuthState{UserID: identity.UID, Authenticated: true})
}

func (s *TokenAuthSource) SignOut() {
	s.mu.Lock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	s.mu.Unlock()
	s.publish(service.AuthState{})
}

func (s *TokenAuthSource) State() service.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *TokenAuthSource) publish(state service.AuthState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	listeners := make([]func(service.AuthState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

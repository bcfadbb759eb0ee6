package auth

import (
	"context"
	"errors"
	"sync"
)

// MemorySessionStore keeps refresh sessions in process memory. Sessions are lost
// on restart, which suits tests and the in-memory backend.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemorySessionStore returns an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

// Save stores session, replacing any session with the same refresh token.
func (s *MemorySessionStore) Save(_ context.Context, session Session) error {
	if session.RefreshToken == "" {
		return errors.New("save session: empty refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.RefreshToken] = session
	return nil
}

// Find returns the session for refreshToken or ErrSessionNotFound.
func (s *MemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[refreshToken]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session for refreshToken. Deleting an unknown token returns
// ErrSessionNotFound, so a refresh token can only be exchanged once.
func (s *MemorySessionStore) Delete(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[refreshToken]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, refreshToken)
	return nil
}

// Has reports whether refreshToken is stored.
func (s *MemorySessionStore) Has(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[refreshToken]
	return ok
}

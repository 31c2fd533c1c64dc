package api

import (
	"sync"

	"github.com/google/uuid"
)

// sessionStore maps bearer tokens to account ids, in memory.
type sessionStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newSessionStore() *sessionStore {
	return &sessionStore{tokens: make(map[string]string)}
}

func (s *sessionStore) create(accountID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.New().String()
	s.tokens[token] = accountID
	return token
}

func (s *sessionStore) accountID(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tokens[token]
	return id, ok
}

func (s *sessionStore) revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
}

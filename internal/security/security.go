// internal/security/security.go
package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"eventsite/internal/logger"
)

const DefaultSessionTTL = 12 * time.Hour

// GenerateToken returns a random URL-safe session token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type session struct {
	admin   bool
	expires time.Time
	flashes []string
}

// SessionStore tracks browser sessions: whether the visitor logged in as
// admin and the flash messages waiting for the next page.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{sessions: make(map[string]*session), ttl: ttl, now: time.Now}
}

// Start opens an anonymous session.
func (s *SessionStore) Start() (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[token] = &session{expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token, nil
}

// get returns a live session and extends it. The caller holds s.mu.
func (s *SessionStore) get(token string) *session {
	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	now := s.now()
	if now.After(sess.expires) {
		delete(s.sessions, token)
		return nil
	}
	sess.expires = now.Add(s.ttl)
	return sess
}

// Valid reports whether token names a live session.
func (s *SessionStore) Valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(token) != nil
}

func (s *SessionStore) IsAdmin(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.get(token)
	return sess != nil && sess.admin
}

// Promote marks the visitor as admin under a fresh token; the old token
// stops working. Pending flashes move to the new token.
func (s *SessionStore) Promote(token string) (string, error) {
	next, err := GenerateToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(token)
	if sess == nil {
		sess = &session{}
	}
	delete(s.sessions, token)
	sess.admin = true
	sess.expires = s.now().Add(s.ttl)
	s.sessions[next] = sess
	return next, nil
}

// Demote drops admin rights but keeps the session for flashes.
func (s *SessionStore) Demote(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.get(token); sess != nil {
		sess.admin = false
	}
}

func (s *SessionStore) AddFlash(token, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.get(token); sess != nil {
		sess.flashes = append(sess.flashes, msg)
	}
}

// PopFlashes returns and clears the pending flash messages.
func (s *SessionStore) PopFlashes(token string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.get(token)
	if sess == nil {
		return nil
	}
	out := sess.flashes
	sess.flashes = nil
	return out
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CleanExpired drops expired sessions and returns how many were removed.
func (s *SessionStore) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// CleanExpiredSessions periodically drops expired sessions until ctx ends.
func (s *SessionStore) CleanExpiredSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanExpired(); n > 0 {
				logger.LogInfo("Session cleanup removed %d expired sessions", n)
			}
		}
	}
}

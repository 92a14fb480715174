package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-storefront/internal/cart"
)

const SessionCookie = "session_id"

// Session owns one visitor's cart. Callers hold the session lock for the
// whole read-modify-write of the cart.
type Session struct {
	ID string

	mu       sync.Mutex
	cart     *cart.Cart
	lastSeen time.Time
}

func (s *Session) Do(fn func(c *cart.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.cart)
}

// Sessions is the process-local session registry.
type Sessions struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Lookup returns the live session for r's cookie, or a new one. When a new
// session is created its cookie is set on w.
func (s *Sessions) Lookup(w http.ResponseWriter, r *http.Request) *Session {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions[c.Value]; ok && now.Sub(sess.lastSeen) < s.ttl {
			sess.lastSeen = now
			return sess
		}
	}

	sess := &Session{
		ID:       uuid.NewString(),
		cart:     cart.New(),
		lastSeen: now,
	}
	s.sessions[sess.ID] = sess

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Sessions) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Package session implements the request-scoped session registry at the
// core of the cookforge backend. Short-lived scopes (one per request or
// fan-out work item) attach to longer-lived sessions that hold
// cross-call state: the in-flight cookbook order and AI conversation
// transcripts. A session is persisted exactly once, when its last scope
// detaches and it expires.
package session

import (
	"sync"
	"time"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/store"
)

// Session is a mutable, possibly long-lived aggregate shared by zero or
// more active scopes. All methods are safe for concurrent use; the
// per-session lock keeps scope attach/detach and expiry refresh
// linearizable without serializing unrelated sessions.
type Session struct {
	// ID uniquely identifies the session for its whole lifetime.
	ID string
	// CreatedAt is fixed at construction.
	CreatedAt time.Time

	mu                 sync.RWMutex
	scopes             map[string]struct{}
	lastAccessedAt     time.Time
	expiresAt          time.Time
	duration           time.Duration
	expiresImmediately bool
	userID             string
	apiKeyValue        string
	order              *store.Order
	conversations      map[string]*Conversation
}

func newSession(id string, duration time.Duration) *Session {
	now := time.Now()
	s := &Session{
		ID:                 id,
		CreatedAt:          now,
		scopes:             make(map[string]struct{}),
		lastAccessedAt:     now,
		expiresAt:          now.Add(duration),
		duration:           duration,
		expiresImmediately: duration <= 0,
		conversations:      make(map[string]*Conversation),
	}
	return s
}

// addScope attaches a scope id. Returns false when already attached.
func (s *Session) addScope(scopeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scopes[scopeID]; ok {
		s.touchLocked()
		return false
	}
	s.scopes[scopeID] = struct{}{}
	s.touchLocked()
	return true
}

// removeScope detaches a scope id. Returns false when not attached.
func (s *Session) removeScope(scopeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scopes[scopeID]; !ok {
		return false
	}
	delete(s.scopes, scopeID)
	return true
}

// HasScope reports whether the scope id is attached.
func (s *Session) HasScope(scopeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.scopes[scopeID]
	return ok
}

// ScopeCount returns the number of attached scopes.
func (s *Session) ScopeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scopes)
}

// Scopes returns a copy of the attached scope ids.
func (s *Session) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.scopes))
	for id := range s.scopes {
		out = append(out, id)
	}
	return out
}

// Touch refreshes LastAccessedAt and ExpiresAt.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *Session) touchLocked() {
	s.lastAccessedAt = time.Now()
	s.expiresAt = s.lastAccessedAt.Add(s.duration)
}

// LastAccessedAt returns the last access timestamp.
func (s *Session) LastAccessedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccessedAt
}

// ExpiresAt returns the expiry deadline.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// ExpiresImmediately reports whether the session is torn down as soon
// as its scope count reaches zero.
func (s *Session) ExpiresImmediately() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresImmediately
}

// ExpireImmediately flags the session for teardown on the next sweep
// after its last scope detaches, regardless of the remaining TTL.
func (s *Session) ExpireImmediately() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresImmediately = true
}

// ShouldExpire reports whether the session is eligible for sweep-driven
// teardown: no attached scopes and either flagged for immediate expiry
// or past its deadline.
func (s *Session) ShouldExpire(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.scopes) > 0 {
		return false
	}
	return s.expiresImmediately || now.After(s.expiresAt)
}

// UserID returns the user correlator, if recorded.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) setUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// APIKeyValue returns the API key correlator, if recorded.
func (s *Session) APIKeyValue() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKeyValue
}

func (s *Session) setAPIKeyValue(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeyValue = value
}

// Order returns the in-flight order, or nil.
func (s *Session) Order() *store.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order
}

// SetOrder attaches an order to the session. A session holds at most
// one order; re-attaching the same order uid is a no-op, a different
// uid is an invariant violation.
func (s *Session) SetOrder(order *store.Order) error {
	if order == nil {
		return errs.InvalidArgument("order is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order != nil && s.order.UID != order.UID {
		return errs.InvariantViolation("session already holds a different order").
			WithContext("session_id", s.ID).
			WithContext("order_id", s.order.UID)
	}
	s.order = order
	return nil
}

// EnsureConversation returns the conversation with the given id,
// creating it on first use.
func (s *Session) EnsureConversation(id, systemPrompt, catalogName string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		return conv
	}
	conv := newConversation(id, systemPrompt, catalogName)
	s.conversations[id] = conv
	return conv
}

// Conversation returns the conversation with the given id.
func (s *Session) Conversation(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	return conv, ok
}

// Conversations returns a snapshot of all conversations.
func (s *Session) Conversations() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv)
	}
	return out
}

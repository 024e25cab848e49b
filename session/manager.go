package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/store"
)

// OrderStore loads and persists cookbook orders.
type OrderStore interface {
	GetOrder(ctx context.Context, uid string) (*store.Order, error)
	UpsertOrder(ctx context.Context, upsert *store.Order) (*store.Order, error)
}

// CustomerStore loads customers.
type CustomerStore interface {
	GetCustomerByEmail(ctx context.Context, email string) (*store.Customer, error)
}

// ConversationSink durably writes a conversation transcript. Invoked
// once per conversation at session end.
type ConversationSink interface {
	WriteConversation(ctx context.Context, conv *Conversation, sess *Session) error
}

// ManagerConfig wires the registry's collaborators.
type ManagerConfig struct {
	Orders    OrderStore
	Customers CustomerStore
	Sink      ConversationSink
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	// DefaultTTL is applied to sessions created through identity-based
	// get-or-create lookups (by user id, by API key). Zero means those
	// sessions expire as soon as their last scope detaches.
	DefaultTTL time.Duration
}

// Manager is the in-memory session registry. It owns session creation,
// expiry refresh, scope attach/detach, and end-of-life persistence
// dispatch. The registry lock guards only the session map and the
// secondary indices; per-session state is guarded by each session's own
// lock, so unrelated sessions never contend.
type Manager struct {
	orders     OrderStore
	customers  CustomerStore
	sink       ConversationSink
	logger     *slog.Logger
	metrics    *observability.Metrics
	defaultTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	byScope  map[string]string // scope id -> session id
	byOrder  map[string]string // order uid -> session id
	byUser   map[string]string // user id -> session id
	byAPIKey map[string]string // api key value -> session id
}

// NewManager creates an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Manager{
		orders:     cfg.Orders,
		customers:  cfg.Customers,
		sink:       cfg.Sink,
		logger:     logger,
		metrics:    metrics,
		defaultTTL: cfg.DefaultTTL,
		sessions:   make(map[string]*Session),
		byScope:    make(map[string]string),
		byOrder:    make(map[string]string),
		byUser:     make(map[string]string),
		byAPIKey:   make(map[string]string),
	}
}

// CreateSession constructs a session with the scope attached and
// registers it. A zero duration means the session expires as soon as
// its last scope detaches.
func (m *Manager) CreateSession(scopeID string, duration time.Duration) (*Session, error) {
	if scopeID == "" {
		return nil, errs.InvalidArgument("scope id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSessionLocked(scopeID, duration)
}

// createSessionLocked inserts a fresh session. Caller must hold m.mu.
func (m *Manager) createSessionLocked(scopeID string, duration time.Duration) (*Session, error) {
	id := uuid.NewString()
	if _, exists := m.sessions[id]; exists {
		// A collision means the id generator is broken. Fatal, never retried.
		return nil, errs.InvariantViolation("generated session id already registered").
			WithContext("session_id", id)
	}

	sess := newSession(id, duration)
	sess.addScope(scopeID)
	m.sessions[id] = sess
	m.byScope[scopeID] = id
	m.metrics.RecordSessionCreated()

	m.logger.Debug("session created",
		slog.String(observability.LogFieldSessionID, id),
		slog.String(observability.LogFieldScopeID, scopeID),
		slog.Duration("ttl", duration))
	return sess, nil
}

// GetSession returns the session with the given id and refreshes its
// expiry.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errs.InvalidArgument("session id is empty")
	}

	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.NotFoundf("session %s not found", sessionID)
	}
	sess.Touch()
	return sess, nil
}

// GetSessionByScope returns the session owning the scope, creating a
// fresh session with the scope attached when none exists.
func (m *Manager) GetSessionByScope(scopeID string) (*Session, error) {
	if scopeID == "" {
		return nil, errs.InvalidArgument("scope id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessionByScopeLocked(scopeID); ok {
		sess.Touch()
		return sess, nil
	}
	return m.createSessionLocked(scopeID, 0)
}

// sessionByScopeLocked resolves a scope to its session. Caller must
// hold m.mu (read or write).
func (m *Manager) sessionByScopeLocked(scopeID string) (*Session, bool) {
	sid, ok := m.byScope[scopeID]
	if !ok {
		return nil, false
	}
	sess, ok := m.sessions[sid]
	return sess, ok
}

// GetSessionByOrder returns the session holding the order, attaching
// the scope to it. When no session holds the order yet, the order and
// its owning customer are loaded from the stores and bound to the
// session already owning the scope, or to a fresh session.
func (m *Manager) GetSessionByOrder(ctx context.Context, orderID, scopeID string) (*Session, error) {
	if orderID == "" {
		return nil, errs.InvalidArgument("order id is empty")
	}
	if scopeID == "" {
		return nil, errs.InvalidArgument("scope id is empty")
	}

	m.mu.Lock()
	if sid, ok := m.byOrder[orderID]; ok {
		if sess, ok := m.sessions[sid]; ok {
			sess.addScope(scopeID)
			m.byScope[scopeID] = sess.ID
			m.mu.Unlock()
			return sess, nil
		}
	}
	m.mu.Unlock()

	// Load collaborator state outside the registry lock.
	order, err := m.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeServiceUnavailable, "failed to load order")
	}
	if order == nil {
		return nil, errs.NotFoundf("order %s not found", orderID)
	}
	customer, err := m.customers.GetCustomerByEmail(ctx, order.CustomerEmail)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeServiceUnavailable, "failed to load customer")
	}
	if customer == nil {
		return nil, errs.NotFoundf("customer %s not found", order.CustomerEmail)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have bound the order while we were loading.
	if sid, ok := m.byOrder[orderID]; ok {
		if sess, ok := m.sessions[sid]; ok {
			sess.addScope(scopeID)
			m.byScope[scopeID] = sess.ID
			return sess, nil
		}
	}

	sess, ok := m.sessionByScopeLocked(scopeID)
	if !ok {
		created, err := m.createSessionLocked(scopeID, 0)
		if err != nil {
			return nil, err
		}
		sess = created
	} else {
		sess.Touch()
	}

	if err := sess.SetOrder(order); err != nil {
		return nil, err
	}
	sess.setUserID(customer.Email)
	m.byOrder[orderID] = sess.ID
	m.byUser[customer.Email] = sess.ID
	return sess, nil
}

// GetSessionByUserID returns the session recorded for the user,
// attaching the scope; otherwise it binds the user to the session
// already owning the scope, or creates a fresh one with the default
// TTL. A scope presenting a different user id than its session already
// recorded is logged as a warning, not an error.
func (m *Manager) GetSessionByUserID(userID, scopeID string) (*Session, error) {
	if userID == "" {
		return nil, errs.InvalidArgument("user id is empty")
	}
	if scopeID == "" {
		return nil, errs.InvalidArgument("scope id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sid, ok := m.byUser[userID]; ok {
		if sess, ok := m.sessions[sid]; ok {
			sess.addScope(scopeID)
			m.byScope[scopeID] = sess.ID
			return sess, nil
		}
	}

	sess, ok := m.sessionByScopeLocked(scopeID)
	if ok {
		if recorded := sess.UserID(); recorded != "" && recorded != userID {
			m.logger.Warn("scope presented a different user id than its session recorded",
				slog.String(observability.LogFieldSessionID, sess.ID),
				slog.String(observability.LogFieldScopeID, scopeID),
				slog.String("recorded_user_id", recorded),
				slog.String(observability.LogFieldUserID, userID))
		}
		sess.Touch()
	} else {
		created, err := m.createSessionLocked(scopeID, m.defaultTTL)
		if err != nil {
			return nil, err
		}
		sess = created
	}

	sess.setUserID(userID)
	m.byUser[userID] = sess.ID
	return sess, nil
}

// GetSessionByAPIKey is the API-key analogue of GetSessionByUserID.
func (m *Manager) GetSessionByAPIKey(apiKeyValue, scopeID string) (*Session, error) {
	if apiKeyValue == "" {
		return nil, errs.InvalidArgument("api key value is empty")
	}
	if scopeID == "" {
		return nil, errs.InvalidArgument("scope id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sid, ok := m.byAPIKey[apiKeyValue]; ok {
		if sess, ok := m.sessions[sid]; ok {
			sess.addScope(scopeID)
			m.byScope[scopeID] = sess.ID
			return sess, nil
		}
	}

	sess, ok := m.sessionByScopeLocked(scopeID)
	if ok {
		sess.Touch()
	} else {
		created, err := m.createSessionLocked(scopeID, m.defaultTTL)
		if err != nil {
			return nil, err
		}
		sess = created
	}

	sess.setAPIKeyValue(apiKeyValue)
	m.byAPIKey[apiKeyValue] = sess.ID
	return sess, nil
}

// AddScopeToSession attaches a scope id to the session. Idempotent;
// refreshes expiry.
func (m *Manager) AddScopeToSession(sess *Session, scopeID string) error {
	if sess == nil {
		return errs.InvalidArgument("session is nil")
	}
	if scopeID == "" {
		return errs.InvalidArgument("scope id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess.addScope(scopeID)
	m.byScope[scopeID] = sess.ID
	return nil
}

// RemoveScopeFromSession detaches a scope id from whichever session
// holds it. Removing an unattached scope is a no-op.
func (m *Manager) RemoveScopeFromSession(scopeID string) error {
	if scopeID == "" {
		return errs.InvalidArgument("scope id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessionByScopeLocked(scopeID)
	delete(m.byScope, scopeID)
	if ok {
		sess.removeScope(scopeID)
	}
	return nil
}

// AddOrder attaches an order to the session owning the scope and
// indexes it for by-order lookup.
func (m *Manager) AddOrder(scopeID string, order *store.Order) error {
	if scopeID == "" {
		return errs.InvalidArgument("scope id is empty")
	}
	if order == nil {
		return errs.InvalidArgument("order is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessionByScopeLocked(scopeID)
	if !ok {
		return errs.NotFoundf("scope %s is not attached to a session", scopeID)
	}
	if err := sess.SetOrder(order); err != nil {
		return err
	}
	m.byOrder[order.UID] = sess.ID
	return nil
}

// InitializeConversation creates (or returns) a conversation within the
// session owning the scope.
func (m *Manager) InitializeConversation(scopeID, conversationID, systemPrompt, catalogName string) (*Conversation, error) {
	if scopeID == "" {
		return nil, errs.InvalidArgument("scope id is empty")
	}
	if conversationID == "" {
		return nil, errs.InvalidArgument("conversation id is empty")
	}

	m.mu.RLock()
	sess, ok := m.sessionByScopeLocked(scopeID)
	m.mu.RUnlock()
	if !ok {
		return nil, errs.NotFoundf("scope %s is not attached to a session", scopeID)
	}
	return sess.EnsureConversation(conversationID, systemPrompt, catalogName), nil
}

// AddMessage appends a message to a conversation within the session
// owning the scope.
func (m *Manager) AddMessage(scopeID, conversationID string, msg Message) error {
	conv, err := m.GetConversation(scopeID, conversationID)
	if err != nil {
		return err
	}
	conv.Append(msg)
	return nil
}

// GetConversation resolves a conversation through the scope's session.
func (m *Manager) GetConversation(scopeID, conversationID string) (*Conversation, error) {
	if scopeID == "" {
		return nil, errs.InvalidArgument("scope id is empty")
	}

	m.mu.RLock()
	sess, ok := m.sessionByScopeLocked(scopeID)
	m.mu.RUnlock()
	if !ok {
		return nil, errs.NotFoundf("scope %s is not attached to a session", scopeID)
	}
	conv, ok := sess.Conversation(conversationID)
	if !ok {
		return nil, errs.NotFoundf("conversation %s not found", conversationID).
			WithContext("session_id", sess.ID)
	}
	return conv, nil
}

// EndSession removes the session from the registry, then persists its
// order and conversation transcripts outside any lock, concurrently.
// Ending an already-ended session is a no-op. Removal happens at most
// once: the session is not re-inserted when persistence fails, and the
// failure propagates to the caller.
func (m *Manager) EndSession(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errs.InvalidArgument("session is nil")
	}

	m.mu.Lock()
	if _, ok := m.sessions[sess.ID]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, sess.ID)
	for _, scopeID := range sess.Scopes() {
		delete(m.byScope, scopeID)
	}
	if order := sess.Order(); order != nil {
		delete(m.byOrder, order.UID)
	}
	if userID := sess.UserID(); userID != "" && m.byUser[userID] == sess.ID {
		delete(m.byUser, userID)
	}
	if apiKey := sess.APIKeyValue(); apiKey != "" && m.byAPIKey[apiKey] == sess.ID {
		delete(m.byAPIKey, apiKey)
	}
	m.mu.Unlock()

	m.metrics.RecordSessionEnded()
	if err := m.persist(ctx, sess); err != nil {
		m.metrics.RecordPersistFailure()
		m.logger.Error("session persistence failed",
			slog.String(observability.LogFieldSessionID, sess.ID),
			slog.String("error", err.Error()))
		return err
	}

	m.logger.Debug("session ended",
		slog.String(observability.LogFieldSessionID, sess.ID))
	return nil
}

// EndSessionByID ends the session with the given id.
func (m *Manager) EndSessionByID(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return errs.NotFoundf("session %s not found", sessionID)
	}
	return m.EndSession(ctx, sess)
}

// EndSessionByOrder ends the session holding the given order.
func (m *Manager) EndSessionByOrder(ctx context.Context, orderID string) error {
	m.mu.RLock()
	sid, ok := m.byOrder[orderID]
	var sess *Session
	if ok {
		sess, ok = m.sessions[sid]
	}
	m.mu.RUnlock()
	if !ok {
		return errs.NotFoundf("no session holds order %s", orderID)
	}
	return m.EndSession(ctx, sess)
}

// persist writes the session's order and every conversation
// concurrently, awaiting completion. A conversation sink reporting
// SERVICE_UNAVAILABLE is logged and skipped; any other failure
// propagates.
func (m *Manager) persist(ctx context.Context, sess *Session) error {
	g, ctx := errgroup.WithContext(ctx)

	if order := sess.Order(); order != nil {
		g.Go(func() error {
			if _, err := m.orders.UpsertOrder(ctx, order); err != nil {
				return errs.Wrap(err, errs.CodeServiceUnavailable, "failed to persist order").
					WithContext("order_id", order.UID)
			}
			return nil
		})
	}

	for _, conv := range sess.Conversations() {
		conv := conv
		g.Go(func() error {
			err := m.sink.WriteConversation(ctx, conv, sess)
			if err == nil {
				return nil
			}
			if errs.IsCode(err, errs.CodeServiceUnavailable) {
				m.logger.Warn("conversation sink unavailable, transcript dropped",
					slog.String(observability.LogFieldSessionID, sess.ID),
					slog.String("conversation_id", conv.ID),
					slog.String("error", err.Error()))
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// Snapshot returns the currently registered sessions. Used by the
// expiry sweeper.
func (m *Manager) Snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

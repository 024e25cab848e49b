package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldScopeID is the field name for scope ID.
	LogFieldScopeID = "scope_id"
	// LogFieldSessionID is the field name for session ID.
	LogFieldSessionID = "session_id"
	// LogFieldUserID is the field name for the user correlator.
	LogFieldUserID = "user_id"
	// LogFieldOrderID is the field name for order ID.
	LogFieldOrderID = "order_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldErrorCode is the field name for error code.
	LogFieldErrorCode = "error_code"
)

// ScopeContext carries structured-logging identity for one unit of work
// (an HTTP request or one fan-out item).
type ScopeContext struct {
	RequestID string
	ScopeID   string
	SessionID string
	UserID    string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewScopeContext creates a context for a fresh unit of work with a
// generated request ID.
func NewScopeContext(logger *slog.Logger, scopeID string) *ScopeContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopeContext{
		RequestID: uuid.New().String(),
		ScopeID:   scopeID,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// WithSession returns a copy bound to a session id.
func (s *ScopeContext) WithSession(sessionID string) *ScopeContext {
	clone := *s
	clone.SessionID = sessionID
	return &clone
}

// WithUser returns a copy bound to a user correlator.
func (s *ScopeContext) WithUser(userID string) *ScopeContext {
	clone := *s
	clone.UserID = userID
	return &clone
}

// Info logs an info message with the scope's base attributes.
func (s *ScopeContext) Info(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, s.combined(attrs)...)
}

// Debug logs a debug message.
func (s *ScopeContext) Debug(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, s.combined(attrs)...)
}

// Warn logs a warning message.
func (s *ScopeContext) Warn(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, s.combined(attrs)...)
}

// Error logs an error message with the error attached.
func (s *ScopeContext) Error(msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error", err.Error()))
	s.Logger.LogAttrs(context.Background(), slog.LevelError, msg, s.combined(attrs)...)
}

// DurationMs returns the elapsed time in milliseconds since the unit of
// work started.
func (s *ScopeContext) DurationMs() int64 {
	return time.Since(s.StartTime).Milliseconds()
}

func (s *ScopeContext) combined(attrs []slog.Attr) []slog.Attr {
	base := make([]slog.Attr, 0, 4+len(attrs))
	base = append(base,
		slog.String(LogFieldRequestID, s.RequestID),
		slog.String(LogFieldScopeID, s.ScopeID))
	if s.SessionID != "" {
		base = append(base, slog.String(LogFieldSessionID, s.SessionID))
	}
	if s.UserID != "" {
		base = append(base, slog.String(LogFieldUserID, s.UserID))
	}
	return append(base, attrs...)
}

type ctxKey struct{}

// WithScopeContext stores the scope context in ctx.
func WithScopeContext(ctx context.Context, sc *ScopeContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext extracts the scope context from ctx.
func FromContext(ctx context.Context) (*ScopeContext, bool) {
	sc, ok := ctx.Value(ctxKey{}).(*ScopeContext)
	return sc, ok
}

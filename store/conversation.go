package store

import (
	"context"
)

// ConversationRecord is the durable form of a session conversation,
// written once when the owning session ends.
type ConversationRecord struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	SystemPrompt   string `json:"system_prompt"`
	CatalogName    string `json:"catalog_name,omitempty"`
	// Transcript is the JSON-encoded ordered message list.
	Transcript []byte `json:"transcript"`
	CreatedTs  int64  `json:"created_ts"`
}

// FindConversationRecord filters conversation record listing.
type FindConversationRecord struct {
	SessionID      *string
	ConversationID *string
	Limit          *int
}

// CreateConversationRecord persists a conversation transcript.
func (s *Store) CreateConversationRecord(ctx context.Context, create *ConversationRecord) (*ConversationRecord, error) {
	return s.driver.CreateConversationRecord(ctx, create)
}

// ListConversationRecords lists persisted transcripts, newest first.
func (s *Store) ListConversationRecords(ctx context.Context, find *FindConversationRecord) ([]*ConversationRecord, error) {
	return s.driver.ListConversationRecords(ctx, find)
}

package session

import (
	"context"
	"encoding/json"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/store"
)

// storeSink persists conversation transcripts through the store facade.
type storeSink struct {
	st *store.Store
}

// NewStoreSink adapts the store facade to the ConversationSink
// contract. Database failures are reported as SERVICE_UNAVAILABLE so
// session teardown degrades to best-effort instead of failing hard.
func NewStoreSink(st *store.Store) ConversationSink {
	return &storeSink{st: st}
}

func (s *storeSink) WriteConversation(ctx context.Context, conv *Conversation, sess *Session) error {
	transcript, err := json.Marshal(conv.Messages())
	if err != nil {
		return errs.Wrap(err, errs.CodeInvariantViolation, "failed to encode transcript")
	}

	record := &store.ConversationRecord{
		SessionID:      sess.ID,
		ConversationID: conv.ID,
		SystemPrompt:   conv.SystemPrompt,
		CatalogName:    conv.PromptCatalogName,
		Transcript:     transcript,
	}
	if _, err := s.st.CreateConversationRecord(ctx, record); err != nil {
		return errs.ServiceUnavailable("conversation sink write failed", err)
	}
	return nil
}

package session

import (
	"encoding/json"
	"sync"
	"time"
)

// PayloadKind tags the variant held by a Payload.
type PayloadKind string

const (
	// PayloadText is plain text content.
	PayloadText PayloadKind = "text"
	// PayloadStructured is a JSON-valued result, e.g. an AI tool-call
	// response or a synthesized recipe.
	PayloadStructured PayloadKind = "structured"
)

// Payload is a tagged union of message content. Exactly one of Text or
// Structured is populated, according to Kind.
type Payload struct {
	Kind       PayloadKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// TextPayload builds a text payload.
func TextPayload(text string) Payload {
	return Payload{Kind: PayloadText, Text: text}
}

// StructuredPayload builds a structured payload from any
// JSON-marshalable value.
func StructuredPayload(v any) (Payload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: PayloadStructured, Structured: raw}, nil
}

// Message is one entry in a conversation transcript.
type Message struct {
	Role      string  `json:"role"` // "user" | "assistant" | "system"
	Payload   Payload `json:"payload"`
	CreatedTs int64   `json:"created_ts"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role string, payload Payload) Message {
	return Message{Role: role, Payload: payload, CreatedTs: time.Now().Unix()}
}

// Conversation is the ordered transcript of one AI interaction within a
// session. Appends are safe under concurrent fan-out children sharing
// the conversation.
type Conversation struct {
	ID                string `json:"id"`
	SystemPrompt      string `json:"system_prompt"`
	PromptCatalogName string `json:"prompt_catalog_name,omitempty"`

	mu       sync.Mutex
	messages []Message
}

func newConversation(id, systemPrompt, catalogName string) *Conversation {
	return &Conversation{
		ID:                id,
		SystemPrompt:      systemPrompt,
		PromptCatalogName: catalogName,
	}
}

// Append adds a message to the end of the transcript.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the transcript in append order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

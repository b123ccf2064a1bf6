package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn in the conversation log.
type ChatMessage struct {
	Role      Role      `json:"role" msgpack:"role"`
	Content   string    `json:"content" msgpack:"content"`
	Sources   []Source  `json:"sources,omitempty" msgpack:"sources,omitempty"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}

// Source is a grounding citation returned with an assistant answer.
type Source struct {
	SourceID string `json:"source" msgpack:"source"`
	Chunk    string `json:"chunk" msgpack:"chunk"`
	Excerpt  string `json:"excerpt" msgpack:"excerpt"`
}

// Label renders the citation header the way the chat view shows it.
func (s Source) Label() string {
	id := s.SourceID
	if id == "" {
		id = "Unknown Source"
	}
	chunk := s.Chunk
	if chunk == "" {
		chunk = "N/A"
	}
	return id + " (Chunk: " + chunk + ")"
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string, sources []Source) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Sources: sources, CreatedAt: time.Now()}
}

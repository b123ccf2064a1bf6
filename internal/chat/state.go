package chat

import "github.com/finqa/workbench/internal/models"

// State is the conversation log plus the in-flight marker.
// A State is never mutated after it is published; Reduce returns a new one.
type State struct {
	Messages []models.ChatMessage `json:"messages" msgpack:"messages"`
	Pending  bool                 `json:"pending" msgpack:"pending"`
	TurnID   string               `json:"turnId,omitempty" msgpack:"turnId,omitempty"`
	Version  uint64               `json:"version" msgpack:"version"`
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// TurnStarted appends the user's question and marks the turn pending.
type TurnStarted struct {
	TurnID   string
	Question models.ChatMessage
}

// TurnResolved appends the assistant reply for the pending turn.
type TurnResolved struct {
	TurnID string
	Reply  models.ChatMessage
}

// Cleared restarts the log from the given opening messages.
type Cleared struct {
	Opening []models.ChatMessage
}

func (TurnStarted) isEvent()  {}
func (TurnResolved) isEvent() {}
func (Cleared) isEvent()      {}

// Reduce computes the next state. It never modifies s. Events that do not
// apply to s (a second start while pending, a reply for another turn) leave
// the log untouched.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case TurnStarted:
		if s.Pending {
			return s
		}
		return State{
			Messages: appendMessage(s.Messages, ev.Question),
			Pending:  true,
			TurnID:   ev.TurnID,
			Version:  s.Version + 1,
		}

	case TurnResolved:
		if !s.Pending || s.TurnID != ev.TurnID {
			return s
		}
		return State{
			Messages: appendMessage(s.Messages, ev.Reply),
			Version:  s.Version + 1,
		}

	case Cleared:
		if s.Pending {
			return s
		}
		msgs := make([]models.ChatMessage, len(ev.Opening))
		copy(msgs, ev.Opening)
		return State{Messages: msgs, Version: s.Version + 1}
	}
	return s
}

func appendMessage(msgs []models.ChatMessage, m models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, m)
}

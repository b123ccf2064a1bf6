package chat

import (
	"context"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/ragclient"
)

// Outcome is how a turn resolved. Err is the remote failure, if any; the
// reply is then the fallback message.
type Outcome struct {
	Reply models.ChatMessage `json:"reply"`
	Err   error              `json:"-"`
}

// Turn is one question in flight together with the context captured for it.
type Turn struct {
	ID       string                     `json:"id"`
	Question models.ChatMessage         `json:"question"`
	History  []ragclient.HistoryMessage `json:"-"`

	done    chan struct{}
	outcome Outcome
}

func newTurn(id string, question models.ChatMessage, history []ragclient.HistoryMessage) *Turn {
	return &Turn{
		ID:       id,
		Question: question,
		History:  history,
		done:     make(chan struct{}),
	}
}

func (t *Turn) resolve(o Outcome) {
	t.outcome = o
	close(t.done)
}

// Done is closed once the reply has been appended.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn resolves or ctx ends.
func (t *Turn) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Package chat drives a grounded multi-turn conversation with the QA service.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/notify"
	"github.com/finqa/workbench/internal/ragclient"
)

// FallbackMessage replaces the answer of any turn that fails.
const FallbackMessage = "Sorry, there was an error processing your request."

var (
	ErrEmptyInput   = errors.New("question is empty")
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

// Chatter sends one chat turn to the QA service.
type Chatter interface {
	Chat(ctx context.Context, req *ragclient.ChatRequest) (*ragclient.ChatResponse, error)
}

// Options configures a Controller.
type Options struct {
	Greeting string // Optional assistant message that opens every conversation
	Fallback string // Overrides FallbackMessage
}

// Controller owns the ordered conversation log. Turns are serialized: a new
// turn is refused while one is pending.
type Controller struct {
	mu       sync.Mutex
	state    State
	client   Chatter
	opts     Options
	watchers *notify.Broadcaster[State]
	inflight sync.WaitGroup
}

// NewController creates a chat controller whose log holds only the greeting, if any.
func NewController(client Chatter, opts Options) *Controller {
	if opts.Fallback == "" {
		opts.Fallback = FallbackMessage
	}
	c := &Controller{
		client:   client,
		opts:     opts,
		watchers: notify.NewBroadcaster[State](),
	}
	c.state = Reduce(State{}, Cleared{Opening: c.opening()})
	return c
}

func (c *Controller) opening() []models.ChatMessage {
	if c.opts.Greeting == "" {
		return nil
	}
	return []models.ChatMessage{models.NewAssistantMessage(c.opts.Greeting, nil)}
}

// State returns the current conversation.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns the current state and a channel of later states.
func (c *Controller) Subscribe() (State, <-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, cancel := c.watchers.Subscribe()
	return c.state, ch, cancel
}

func (c *Controller) apply(ev Event) {
	c.state = Reduce(c.state, ev)
	c.watchers.Publish(c.state)
}

// SubmitTurn appends the question to the log immediately and sends it with
// the prior log as context. The returned Turn resolves once exactly one
// assistant message (answer or fallback) has been appended after it.
func (c *Controller) SubmitTurn(ctx context.Context, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.state.Pending {
		c.mu.Unlock()
		return nil, ErrTurnInFlight
	}

	history := make([]ragclient.HistoryMessage, 0, len(c.state.Messages))
	for _, m := range c.state.Messages {
		history = append(history, ragclient.HistoryMessage{Role: string(m.Role), Content: m.Content})
	}

	turn := newTurn(uuid.New().String(), models.NewUserMessage(text), history)
	c.apply(TurnStarted{TurnID: turn.ID, Question: turn.Question})
	c.inflight.Add(1)
	c.mu.Unlock()

	log.Infof("[Turn %s] Asking with %d prior messages", turn.ID[:8], len(history))
	go c.run(context.WithoutCancel(ctx), turn)

	return turn, nil
}

func (c *Controller) run(ctx context.Context, t *Turn) {
	defer c.inflight.Done()

	reply, err := c.ask(ctx, t)
	if err != nil {
		log.Warnf("[Turn %s] Failed: %v", t.ID[:8], err)
		reply = models.NewAssistantMessage(c.opts.Fallback, nil)
	} else {
		log.Infof("[Turn %s] Answered with %d sources", t.ID[:8], len(reply.Sources))
	}

	c.mu.Lock()
	c.apply(TurnResolved{TurnID: t.ID, Reply: reply})
	c.mu.Unlock()

	t.resolve(Outcome{Reply: reply, Err: err})
}

func (c *Controller) ask(ctx context.Context, t *Turn) (reply models.ChatMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Turn %s] PANIC recovered: %v", t.ID[:8], r)
			err = fmt.Errorf("chat panicked: %v", r)
		}
	}()

	resp, err := c.client.Chat(ctx, &ragclient.ChatRequest{
		Question:    t.Question.Content,
		ChatHistory: t.History,
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return models.NewAssistantMessage(resp.Answer, convertSources(resp.Sources)), nil
}

func convertSources(in []ragclient.Source) []models.Source {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Source, 0, len(in))
	for _, s := range in {
		out = append(out, models.Source{
			SourceID: s.Metadata.Source,
			Chunk:    string(s.Metadata.Chunk),
			Excerpt:  s.Content,
		})
	}
	return out
}

// Reset restarts the conversation from the greeting.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Pending {
		return ErrTurnInFlight
	}
	c.apply(Cleared{Opening: c.opening()})
	return nil
}

// Wait blocks until the pending turn, if any, has resolved.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close waits for the pending turn and ends subscriptions.
func (c *Controller) Close() {
	c.inflight.Wait()
	c.watchers.Close()
}

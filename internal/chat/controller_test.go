package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/ragclient"
)

type pendingChat struct {
	req   *ragclient.ChatRequest
	reply chan chatReply
}

type chatReply struct {
	resp *ragclient.ChatResponse
	err  error
}

// gatedChatter holds every request until the test answers it.
type gatedChatter struct {
	calls chan *pendingChat
	count atomic.Int32
}

func newGatedChatter() *gatedChatter {
	return &gatedChatter{calls: make(chan *pendingChat, 4)}
}

func (g *gatedChatter) Chat(ctx context.Context, req *ragclient.ChatRequest) (*ragclient.ChatResponse, error) {
	g.count.Add(1)
	call := &pendingChat{req: req, reply: make(chan chatReply, 1)}
	g.calls <- call
	r := <-call.reply
	return r.resp, r.err
}

func (g *gatedChatter) next(t *testing.T) *pendingChat {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat call")
		return nil
	}
}

func waitTurn(t *testing.T, turn *Turn) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := turn.Wait(ctx)
	require.NoError(t, err)
	return out
}

func TestController_SuccessScenario(t *testing.T) {
	chatter := newGatedChatter()
	c := NewController(chatter, Options{})
	require.Empty(t, c.State().Messages)

	turn, err := c.SubmitTurn(context.Background(), "What is revenue?")
	require.NoError(t, err)

	// The question is visible before the request completes.
	s := c.State()
	require.Len(t, s.Messages, 1)
	assert.Equal(t, models.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "What is revenue?", s.Messages[0].Content)
	assert.True(t, s.Pending)

	call := chatter.next(t)
	assert.Equal(t, "What is revenue?", call.req.Question)
	assert.Empty(t, call.req.ChatHistory)

	call.reply <- chatReply{resp: &ragclient.ChatResponse{
		Answer: "$5M",
		Sources: []ragclient.Source{{
			Content:  "...",
			Metadata: ragclient.SourceMetadata{Source: "10-K", Chunk: "3"},
		}},
	}}
	out := waitTurn(t, turn)
	assert.NoError(t, out.Err)

	s = c.State()
	require.Len(t, s.Messages, 2)
	assert.False(t, s.Pending)
	assert.Equal(t, models.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "$5M", s.Messages[1].Content)
	require.Len(t, s.Messages[1].Sources, 1)
	assert.Equal(t, models.Source{SourceID: "10-K", Chunk: "3", Excerpt: "..."}, s.Messages[1].Sources[0])
}

func TestController_FailureFallback(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport", &ragclient.TransportError{Op: "chat", Err: errors.New("connection refused")}},
		{"service", &ragclient.ServiceError{StatusCode: 500, Detail: "vector store unavailable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chatter := newGatedChatter()
			c := NewController(chatter, Options{})

			turn, err := c.SubmitTurn(context.Background(), "What is revenue?")
			require.NoError(t, err)
			chatter.next(t).reply <- chatReply{err: tt.err}

			out := waitTurn(t, turn)
			assert.Equal(t, tt.err, out.Err)

			s := c.State()
			require.Len(t, s.Messages, 2)
			assert.Equal(t, models.RoleAssistant, s.Messages[1].Role)
			assert.Equal(t, FallbackMessage, s.Messages[1].Content)
			assert.Empty(t, s.Messages[1].Sources)
			assert.False(t, s.Pending)
		})
	}
}

func TestController_Preconditions(t *testing.T) {
	chatter := newGatedChatter()
	c := NewController(chatter, Options{})

	_, err := c.SubmitTurn(context.Background(), "   \n\t")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, c.State().Messages)

	turn, err := c.SubmitTurn(context.Background(), "first")
	require.NoError(t, err)
	call := chatter.next(t)

	_, err = c.SubmitTurn(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Len(t, c.State().Messages, 1)
	assert.ErrorIs(t, c.Reset(), ErrTurnInFlight)

	call.reply <- chatReply{resp: &ragclient.ChatResponse{Answer: "ok"}}
	waitTurn(t, turn)
	assert.Equal(t, int32(1), chatter.count.Load())
}

func TestController_TurnOrderingAndHistory(t *testing.T) {
	chatter := newGatedChatter()
	c := NewController(chatter, Options{Greeting: "Hello! How can I help you today?"})

	questions := []string{"q1", "q2", "q3"}
	for i, q := range questions {
		turn, err := c.SubmitTurn(context.Background(), q)
		require.NoError(t, err)

		call := chatter.next(t)
		// History is every prior message, excluding the current question.
		require.Len(t, call.req.ChatHistory, 1+2*i)
		assert.Equal(t, ragclient.HistoryMessage{Role: "assistant", Content: "Hello! How can I help you today?"}, call.req.ChatHistory[0])
		if i > 0 {
			assert.Equal(t, questions[i-1], call.req.ChatHistory[len(call.req.ChatHistory)-2].Content)
		}

		// Vary latency; ordering must not depend on it.
		go func(d time.Duration, answer string) {
			time.Sleep(d)
			call.reply <- chatReply{resp: &ragclient.ChatResponse{Answer: answer}}
		}(time.Duration(3-i)*10*time.Millisecond, "a"+q[1:])
		waitTurn(t, turn)
	}

	msgs := c.State().Messages
	require.Len(t, msgs, 7)
	want := []string{"Hello! How can I help you today?", "q1", "a1", "q2", "a2", "q3", "a3"}
	for i, m := range msgs {
		assert.Equal(t, want[i], m.Content)
		if i%2 == 0 {
			assert.Equal(t, models.RoleAssistant, m.Role)
		} else {
			assert.Equal(t, models.RoleUser, m.Role)
		}
	}
}

func TestController_FailedTurnStaysInHistory(t *testing.T) {
	chatter := newGatedChatter()
	c := NewController(chatter, Options{})

	turn, _ := c.SubmitTurn(context.Background(), "q1")
	chatter.next(t).reply <- chatReply{err: errors.New("boom")}
	waitTurn(t, turn)

	turn, err := c.SubmitTurn(context.Background(), "q2")
	require.NoError(t, err)
	call := chatter.next(t)
	require.Len(t, call.req.ChatHistory, 2)
	assert.Equal(t, FallbackMessage, call.req.ChatHistory[1].Content)
	call.reply <- chatReply{resp: &ragclient.ChatResponse{Answer: "a2"}}
	waitTurn(t, turn)
}

func TestController_Reset(t *testing.T) {
	chatter := newGatedChatter()
	c := NewController(chatter, Options{Greeting: "hi"})

	turn, _ := c.SubmitTurn(context.Background(), "q1")
	chatter.next(t).reply <- chatReply{resp: &ragclient.ChatResponse{Answer: "a1"}}
	waitTurn(t, turn)
	require.Len(t, c.State().Messages, 3)

	require.NoError(t, c.Reset())
	msgs := c.State().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestReduce_IgnoresForeignReplies(t *testing.T) {
	s := Reduce(State{}, TurnStarted{TurnID: "t1", Question: models.NewUserMessage("q")})
	same := Reduce(s, TurnResolved{TurnID: "t2", Reply: models.NewAssistantMessage("x", nil)})
	assert.Equal(t, s, same)

	again := Reduce(s, TurnStarted{TurnID: "t3", Question: models.NewUserMessage("q2")})
	assert.Equal(t, s, again)

	done := Reduce(s, TurnResolved{TurnID: "t1", Reply: models.NewAssistantMessage("a", nil)})
	require.Len(t, done.Messages, 2)
	assert.Len(t, s.Messages, 1, "input state is unchanged")

	late := Reduce(done, TurnResolved{TurnID: "t1", Reply: models.NewAssistantMessage("dup", nil)})
	assert.Len(t, late.Messages, 2)
}

// handlers_chat.go - Conversation handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/finqa/workbench/internal/chat"
	"github.com/finqa/workbench/internal/models"
)

// ChatHandlerImpl implements the ChatHandler interface
type ChatHandlerImpl struct {
	sessions WorkspaceManager
}

// NewChatHandler creates a new chat handler
func NewChatHandler(sessions WorkspaceManager) ChatHandler {
	return &ChatHandlerImpl{sessions: sessions}
}

type submitTurnRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	TurnID   string               `json:"turnId"`
	Question models.ChatMessage   `json:"question"`
	Reply    *models.ChatMessage  `json:"reply,omitempty"`
	Messages []models.ChatMessage `json:"messages,omitempty"`
}

// HandleGetChat returns the conversation log
func (h *ChatHandlerImpl) HandleGetChat(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ws.Chat.State())
}

// HandleGetChatMsgpack returns the conversation log in MessagePack format
func (h *ChatHandlerImpl) HandleGetChatMsgpack(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}
	return sendMsgpack(c, http.StatusOK, ws.Chat.State())
}

// HandleSubmitTurn asks one question. With ?wait=true the response carries
// the assistant reply.
func (h *ChatHandlerImpl) HandleSubmitTurn(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}

	var req submitTurnRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	turn, err := ws.Chat.SubmitTurn(c.Request().Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyInput):
			return NewValidationError("text")
		case errors.Is(err, chat.ErrTurnInFlight):
			return NewConflictError("a question is already being answered")
		}
		return NewInternalError("failed to submit question", err)
	}

	if !wantsWait(c) {
		return c.JSON(http.StatusAccepted, turnResponse{TurnID: turn.ID, Question: turn.Question})
	}

	out, err := turn.Wait(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, turnResponse{
		TurnID:   turn.ID,
		Question: turn.Question,
		Reply:    &out.Reply,
		Messages: ws.Chat.State().Messages,
	})
}

// HandleResetChat clears the conversation back to its opening
func (h *ChatHandlerImpl) HandleResetChat(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}
	if err := ws.Chat.Reset(); err != nil {
		if errors.Is(err, chat.ErrTurnInFlight) {
			return NewConflictError("cannot reset while a question is being answered")
		}
		return NewInternalError("failed to reset conversation", err)
	}
	return c.JSON(http.StatusOK, ws.Chat.State())
}

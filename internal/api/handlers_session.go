// handlers_session.go - Workspace lifecycle handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/finqa/workbench/internal/session"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions WorkspaceManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions WorkspaceManager) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions}
}

// HandleCreateSession starts a new workspace
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	ws, err := h.sessions.Create()
	if err != nil {
		if errors.Is(err, session.ErrAtCapacity) {
			return NewServiceUnavailableError("too many active sessions, try again later")
		}
		return NewInternalError("failed to create session", err)
	}

	info, _ := h.sessions.Info(ws.ID)
	return c.JSON(http.StatusCreated, info)
}

// HandleListSessions returns a summary of every workspace
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleGetSession returns a summary of one workspace
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	info, ok := h.sessions.Info(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteSession ends a workspace, dropping its files and conversation
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive protects a workspace from idle cleanup
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if !h.sessions.Touch(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/ragclient"
	"github.com/finqa/workbench/internal/session"
)

// SessionHandler handles workspace lifecycle operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
}

// FileHandler handles the upload list of a workspace
type FileHandler interface {
	HandleGetFiles(c echo.Context) error
	HandleGetFilesMsgpack(c echo.Context) error
	HandleSelectFiles(c echo.Context) error
	HandleRemoveFile(c echo.Context) error
	HandleSubmitFiles(c echo.Context) error
}

// ChatHandler handles the conversation of a workspace
type ChatHandler interface {
	HandleGetChat(c echo.Context) error
	HandleGetChatMsgpack(c echo.Context) error
	HandleSubmitTurn(c echo.Context) error
	HandleResetChat(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// DocumentsHandler proxies the service's document listing
type DocumentsHandler interface {
	HandleGetDocuments(c echo.Context) error
}

// StreamHandler pushes state snapshots to the browser
type StreamHandler interface {
	HandleWebSocket(c echo.Context) error
	HandleEventStream(c echo.Context) error
}

// WorkspaceManager defines the interface for workspace management
// This allows mocking in tests
type WorkspaceManager interface {
	Create() (*session.Workspace, error)
	Get(id string) (*session.Workspace, bool)
	Touch(id string) bool
	Info(id string) (models.WorkspaceInfo, bool)
	List() []models.WorkspaceInfo
	Delete(id string) bool
	Len() int
}

// StagingStore holds selected file bytes until upload
type StagingStore interface {
	Save(name, mediaType string, r io.Reader) (*models.StagedFile, error)
	List(limit int) ([]*models.StagedFile, error)
	Delete(id string) error
}

// ServiceProbe is the read-only side of the QA service
type ServiceProbe interface {
	BaseURL() string
	Health(ctx context.Context) (*ragclient.HealthResponse, error)
	Documents(ctx context.Context) ([]ragclient.Document, error)
}

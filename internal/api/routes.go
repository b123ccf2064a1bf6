// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store          StagingStore
	Sessions       WorkspaceManager
	Service        ServiceProbe
	FieldName      string
	WSMaxMessageKB int
	Version        string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Documents DocumentsHandler
	Session   SessionHandler
	Files     FileHandler
	Chat      ChatHandler
	Stream    StreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	health := NewHealthHandler(deps.Version, deps.Service, deps.Sessions, deps.Store)
	return &Handlers{
		Health:    health,
		Documents: health,
		Session:   NewSessionHandler(deps.Sessions),
		Files:     NewFileHandler(deps.Sessions, deps.Store, deps.FieldName),
		Chat:      NewChatHandler(deps.Sessions),
		Stream:    NewWebSocketHandler(deps.Sessions, deps.WSMaxMessageKB),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Workspace routes
	sessions := e.Group("/api/sessions")
	sessions.POST("", handlers.Session.HandleCreateSession)
	sessions.GET("", handlers.Session.HandleListSessions)
	sessions.GET("/:id", handlers.Session.HandleGetSession)
	sessions.DELETE("/:id", handlers.Session.HandleDeleteSession)
	sessions.POST("/:id/keepalive", handlers.Session.HandleSessionKeepAlive)

	// Upload list routes
	sessions.GET("/:id/files", handlers.Files.HandleGetFiles)
	sessions.GET("/:id/files/msgpack", handlers.Files.HandleGetFilesMsgpack)
	sessions.POST("/:id/files", handlers.Files.HandleSelectFiles)
	sessions.POST("/:id/files/upload", handlers.Files.HandleSubmitFiles)
	sessions.DELETE("/:id/files/:fileId", handlers.Files.HandleRemoveFile)

	// Conversation routes
	sessions.GET("/:id/chat", handlers.Chat.HandleGetChat)
	sessions.GET("/:id/chat/msgpack", handlers.Chat.HandleGetChatMsgpack)
	sessions.POST("/:id/chat", handlers.Chat.HandleSubmitTurn)
	sessions.DELETE("/:id/chat", handlers.Chat.HandleResetChat)

	// QA service proxy
	sessions.GET("/:id/documents", handlers.Documents.HandleGetDocuments)

	// State streams
	sessions.GET("/:id/ws", handlers.Stream.HandleWebSocket)
	sessions.GET("/:id/events", handlers.Stream.HandleEventStream)
}

// MiddlewareOptions selects the optional middleware
type MiddlewareOptions struct {
	EnableCORS     bool
	AllowOrigins   []string
	RequestLogging bool
	BodyLimit      string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	if opts.RequestLogging {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Skipper: func(c echo.Context) bool {
				// Skip logging for health checks and long-lived streams
				path := c.Path()
				return path == "/api/health" || path == "/api/sessions/:id/ws" || path == "/api/sessions/:id/events"
			},
			Format: "${time_rfc3339} ${method} ${uri} ${status} ${latency_human}\n",
		}))
	}
	e.Use(middleware.Recover())

	if opts.EnableCORS {
		origins := opts.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
}

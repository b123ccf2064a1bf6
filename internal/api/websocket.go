package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/finqa/workbench/internal/chat"
	"github.com/finqa/workbench/internal/session"
	"github.com/finqa/workbench/internal/upload"
)

// WebSocket message types for the state stream
const (
	// Client -> Server messages
	MsgTypePing        = "ping"
	MsgTypeSubmitTurn  = "chat:submit"
	MsgTypeSubmitFiles = "files:submit"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeUploads   = "uploads"
	MsgTypeChat      = "chat"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
	MsgTypeClosed    = "closed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Submit turn payload
type SubmitTurnPayload struct {
	Text string `json:"text"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams workspace state to the browser
type WebSocketHandler struct {
	sessions       WorkspaceManager
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

// NewWebSocketHandler creates a new stream handler. maxMessageKB bounds
// client messages.
func NewWebSocketHandler(sessions WorkspaceManager, maxMessageKB int) *WebSocketHandler {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxMessageSize: int64(maxMessageKB) * 1024,
	}
}

// HandleWebSocket upgrades the connection and pushes every upload and chat
// state change until the client leaves or the workspace ends.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := workspaceFrom(c, wsh.sessions)
	if err != nil {
		return err
	}

	conn, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Infof("[WebSocket %s] Client connected", ws.ID[:8])

	uploadsNow, uploadsCh, cancelUploads := ws.Uploads.Subscribe()
	defer cancelUploads()
	chatNow, chatCh, cancelChat := ws.Chat.Subscribe()
	defer cancelChat()

	conn.SetReadLimit(wsh.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// gorilla allows one reader and one writer; the reader hands messages
	// to the write loop below.
	incoming := make(chan WSMessage)
	readerDone := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(readerDone)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("[WebSocket %s] Connection error: %v", ws.ID[:8], err)
				}
				return
			}
			select {
			case incoming <- msg:
			case <-stop:
				return
			}
		}
	}()

	send := func(typ string, payload interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(WSMessage{Type: typ, Payload: mustJSON(payload), Timestamp: time.Now().UnixMilli()})
	}

	if err := send(MsgTypeConnected, map[string]string{"sessionId": ws.ID}); err != nil {
		return nil
	}
	if err := send(MsgTypeUploads, uploadsNow); err != nil {
		return nil
	}
	if err := send(MsgTypeChat, chatNow); err != nil {
		return nil
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case s, ok := <-uploadsCh:
			if !ok {
				wsh.close(conn, send)
				return nil
			}
			err = send(MsgTypeUploads, s)
		case s, ok := <-chatCh:
			if !ok {
				wsh.close(conn, send)
				return nil
			}
			err = send(MsgTypeChat, s)
		case msg := <-incoming:
			err = wsh.handleMessage(ws, msg, send)
		case <-ticker.C:
			wsh.sessions.Touch(ws.ID)
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		case <-readerDone:
			log.Infof("[WebSocket %s] Client disconnected", ws.ID[:8])
			return nil
		}
		if err != nil {
			log.Debugf("[WebSocket %s] Write failed: %v", ws.ID[:8], err)
			return nil
		}
	}
}

// close tells the client the workspace has ended.
func (wsh *WebSocketHandler) close(conn *websocket.Conn, send func(string, interface{}) error) {
	send(MsgTypeClosed, nil)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(writeWait))
}

func (wsh *WebSocketHandler) handleMessage(ws *session.Workspace, msg WSMessage, send func(string, interface{}) error) error {
	switch msg.Type {
	case MsgTypePing:
		// Respond with pong to keep connection alive
		return send(MsgTypePong, nil)
	case MsgTypeSubmitTurn:
		var payload SubmitTurnPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return send(MsgTypeError, WSErrorResponse{Message: "Invalid payload: " + err.Error(), Code: "INVALID_PAYLOAD"})
		}
		if _, err := ws.Chat.SubmitTurn(context.Background(), payload.Text); err != nil {
			return send(MsgTypeError, wsError(err))
		}
		return nil
	case MsgTypeSubmitFiles:
		if _, err := ws.Uploads.Submit(context.Background()); err != nil {
			return send(MsgTypeError, wsError(err))
		}
		return nil
	default:
		return send(MsgTypeError, WSErrorResponse{Message: "Unknown message type: " + msg.Type, Code: "INVALID_TYPE"})
	}
}

func wsError(err error) WSErrorResponse {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return WSErrorResponse{Message: err.Error(), Code: "VALIDATION_ERROR"}
	case errors.Is(err, chat.ErrTurnInFlight), errors.Is(err, upload.ErrNoPendingItems):
		return WSErrorResponse{Message: err.Error(), Code: "CONFLICT"}
	}
	return WSErrorResponse{Message: err.Error(), Code: "INTERNAL_ERROR"}
}

// HandleEventStream streams the same snapshots as Server-Sent Events for
// clients that cannot open a WebSocket.
func (wsh *WebSocketHandler) HandleEventStream(c echo.Context) error {
	ws, err := workspaceFrom(c, wsh.sessions)
	if err != nil {
		return err
	}

	uploadsNow, uploadsCh, cancelUploads := ws.Uploads.Subscribe()
	defer cancelUploads()
	chatNow, chatCh, cancelChat := ws.Chat.Subscribe()
	defer cancelChat()

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sendSSEData(c, MsgTypeUploads, uploadsNow)
	sendSSEData(c, MsgTypeChat, chatNow)

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case s, ok := <-uploadsCh:
			if !ok {
				sendSSEData(c, MsgTypeClosed, nil)
				return nil
			}
			sendSSEData(c, MsgTypeUploads, s)
		case s, ok := <-chatCh:
			if !ok {
				sendSSEData(c, MsgTypeClosed, nil)
				return nil
			}
			sendSSEData(c, MsgTypeChat, s)
		case <-keepAlive.C:
			wsh.sessions.Touch(ws.ID)
			fmt.Fprint(c.Response(), ": keepalive\n\n")
			c.Response().Flush()
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

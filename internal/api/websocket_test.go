package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/workbench/internal/chat"
	"github.com/finqa/workbench/internal/upload"
)

func dialSession(t *testing.T, server *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(WSMessage) bool) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string) func(WSMessage) bool {
	return func(m WSMessage) bool { return m.Type == typ }
}

func TestWebSocket_StreamsState(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.e)
	defer server.Close()
	id := env.createSession(t)

	conn := dialSession(t, server, id)

	readUntil(t, conn, ofType(MsgTypeConnected))
	first := readUntil(t, conn, ofType(MsgTypeUploads))
	var uploads upload.State
	require.NoError(t, json.Unmarshal(first.Payload, &uploads))
	assert.Empty(t, uploads.Entries)

	greeting := readUntil(t, conn, ofType(MsgTypeChat))
	var state chat.State
	require.NoError(t, json.Unmarshal(greeting.Payload, &state))
	assert.Len(t, state.Messages, 1)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing}))
	readUntil(t, conn, ofType(MsgTypePong))

	// A file selected over HTTP shows up on the stream.
	env.do(multipartRequest(t, "/api/sessions/"+id+"/files", formFile{"a.pdf", "application/pdf", "%PDF"}))
	readUntil(t, conn, func(m WSMessage) bool {
		if m.Type != MsgTypeUploads {
			return false
		}
		var s upload.State
		json.Unmarshal(m.Payload, &s)
		return len(s.Entries) == 1
	})

	// A question asked over the socket resolves into an answer.
	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeSubmitTurn, Payload: mustJSON(SubmitTurnPayload{Text: "Summarize"})}))
	answered := readUntil(t, conn, func(m WSMessage) bool {
		if m.Type != MsgTypeChat {
			return false
		}
		var s chat.State
		json.Unmarshal(m.Payload, &s)
		return len(s.Messages) == 3 && !s.Pending
	})
	require.NoError(t, json.Unmarshal(answered.Payload, &state))
	assert.Equal(t, "Answer to: Summarize", state.Messages[2].Content)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeSubmitTurn, Payload: mustJSON(SubmitTurnPayload{Text: " "})}))
	bad := readUntil(t, conn, ofType(MsgTypeError))
	assert.Contains(t, string(bad.Payload), "VALIDATION_ERROR")

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "bogus"}))
	bad = readUntil(t, conn, ofType(MsgTypeError))
	assert.Contains(t, string(bad.Payload), "INVALID_TYPE")

	// Ending the workspace closes the stream.
	env.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	readUntil(t, conn, ofType(MsgTypeClosed))
}

func TestWebSocket_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.e)
	defer server.Close()
	id := env.createSession(t)

	resp, err := http.Get(server.URL + "/api/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var events []string
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event: ")))
		}
	}
	assert.Equal(t, []string{MsgTypeUploads, MsgTypeChat}, events)

	env.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: "+MsgTypeClosed) {
			break
		}
	}
}

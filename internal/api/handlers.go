package api

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/finqa/workbench/internal/session"
)

// workspaceFrom resolves the :id path parameter and marks the workspace as used.
func workspaceFrom(c echo.Context, mgr WorkspaceManager) (*session.Workspace, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	ws, ok := mgr.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	mgr.Touch(id)
	return ws, nil
}

// wantsWait reports whether the caller asked to block until resolution.
func wantsWait(c echo.Context) bool {
	wait, _ := strconv.ParseBool(c.QueryParam("wait"))
	return wait
}

func sendMsgpack(c echo.Context, status int, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(status, "application/msgpack", data)
}

func sendSSEData(c echo.Context, event string, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, jsonData)
	c.Response().Flush()
}

// handlers_health.go - Health check and service proxy handlers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler and DocumentsHandler interfaces
type HealthHandlerImpl struct {
	version  string
	service  ServiceProbe
	sessions WorkspaceManager
	store    StagingStore
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, service ServiceProbe, sessions WorkspaceManager, store StagingStore) *HealthHandlerImpl {
	return &HealthHandlerImpl{
		version:  version,
		service:  service,
		sessions: sessions,
		store:    store,
	}
}

type serviceStatus struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string        `json:"status"`
	Version     string        `json:"version"`
	Sessions    int           `json:"sessions"`
	StagedFiles int           `json:"stagedFiles"`
	Service     serviceStatus `json:"service"`
}

// HandleHealth returns server health status and whether the QA service answers.
// An unreachable service degrades the status but never fails the check.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := healthResponse{
		Status:   "ok",
		Version:  h.version,
		Sessions: h.sessions.Len(),
		Service:  serviceStatus{URL: h.service.BaseURL()},
	}
	if staged, err := h.store.List(0); err == nil {
		resp.StagedFiles = len(staged)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if probe, err := h.service.Health(ctx); err != nil {
		resp.Status = "degraded"
		resp.Service.Error = err.Error()
	} else {
		resp.Service.Reachable = true
		resp.Service.Message = probe.Message
	}

	return c.JSON(http.StatusOK, resp)
}

// HandleGetDocuments lists the documents the QA service has ingested
func (h *HealthHandlerImpl) HandleGetDocuments(c echo.Context) error {
	if _, err := workspaceFrom(c, h.sessions); err != nil {
		return err
	}

	docs, err := h.service.Documents(c.Request().Context())
	if err != nil {
		return NewBadGatewayError("failed to list documents", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": docs})
}

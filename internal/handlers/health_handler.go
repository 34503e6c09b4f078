package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/common"
)

// HealthHandler serves liveness and build information.
type HealthHandler struct {
	logger    arbor.ILogger
	startedAt time.Time
}

func NewHealthHandler(logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		startedAt: time.Now(),
	}
}

// GetHealthHandler handles GET /health
func (h *HealthHandler) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(h.startedAt).String(),
		"version": common.Version,
	})
}

// GetVersionHandler handles GET /version
func (h *HealthHandler) GetVersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

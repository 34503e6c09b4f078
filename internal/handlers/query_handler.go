package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/services/agents"
)

// QueryHandler relays /query requests to the supervisor.
type QueryHandler struct {
	supervisor *agents.Supervisor
	logger     arbor.ILogger
}

func NewQueryHandler(supervisor *agents.Supervisor, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		supervisor: supervisor,
		logger:     logger,
	}
}

// QueryHandler handles POST /query
func (h *QueryHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req agents.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	resp := h.supervisor.Answer(r.Context(), req)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, resp)
}

// SessionHandler handles GET /session/{session_id}
func (h *QueryHandler) SessionHandler(sessions *agents.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, "GET") {
			return
		}
		sessionID := PathSuffix(r, "/session")
		if sessionID == "" {
			WriteError(w, http.StatusBadRequest, "session id required")
			return
		}
		session, err := sessions.Get(sessionID)
		if err != nil {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, session)
	}
}

// Package api exposes the local debug surface over HTTP: live state and
// error-report snapshots, journal queries, and the debug actions that
// poke the stores directly during playtesting.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remotelab/remote-client/internal/desktop"
	"github.com/remotelab/remote-client/internal/game"
	"github.com/remotelab/remote-client/internal/journal"
	"github.com/remotelab/remote-client/internal/report"
	"github.com/remotelab/remote-client/internal/socket"
	"github.com/remotelab/remote-client/internal/tom"
)

// Connection is the piece of the socket client the debug surface reads.
type Connection interface {
	State() socket.State
}

// Handler provides the debug HTTP handlers.
type Handler struct {
	session *game.Store
	env     *desktop.Store
	agent   *tom.Store
	conn    Connection
	repo    journal.Repository
}

// NewHandler creates a Handler over the live stores and the journal.
func NewHandler(session *game.Store, env *desktop.Store, agent *tom.Store, conn Connection, repo journal.Repository) *Handler {
	return &Handler{
		session: session,
		env:     env,
		agent:   agent,
		conn:    conn,
		repo:    repo,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the debug API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Post("/report", h.CreateReport)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Get("/actions", h.ListActions)
			r.Get("/messages", h.ListMessages)
		})

		r.Route("/debug", func(r chi.Router) {
			r.Post("/corruption", h.SimulateCorruption)
			r.Post("/session/reset", h.ResetSession)
			r.Post("/session/end", h.EndSession)
			r.Post("/tom/message", h.SendTestMessage)
			r.Post("/tom/trust", h.AdjustTrust)
			r.Post("/tom/disconnect", h.DisconnectAgent)
		})
	})
}

// GetState returns a diagnostic snapshot of every store.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	d := report.NewDiagnostic(h.session.Summary(), h.conn.State(), h.env.Stats(), h.agent.State())
	JSON(w, http.StatusOK, d)
}

// CreateReport builds an error report from a caller-supplied message.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	rep := report.NewErrorReport(errors.New(req.Message))
	JSON(w, http.StatusCreated, map[string]interface{}{
		"report": rep,
		"text":   rep.Format(),
	})
}

// GetSession returns one journaled session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, rec)
}

// ListActions returns a session's journaled actions in recording order.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.ListActions(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load actions")
		return
	}
	if recs == nil {
		recs = []*journal.ActionRecord{}
	}
	JSON(w, http.StatusOK, recs)
}

// ListMessages returns a session's journaled conversation.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.ListMessages(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if recs == nil {
		recs = []*journal.MessageRecord{}
	}
	JSON(w, http.StatusOK, recs)
}

// SimulateCorruption bumps the corruption level one step.
func (h *Handler) SimulateCorruption(w http.ResponseWriter, r *http.Request) {
	h.env.SimulateCorruption()
	JSON(w, http.StatusOK, h.env.CorruptionState())
}

// ResetSession ends the current session and schedules a fresh one.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.session.ResetSession()
	JSON(w, http.StatusAccepted, map[string]string{"status": "resetting"})
}

// EndSession ends the current session with an optional ending type.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EndingType string `json:"ending_type"`
	}
	// An empty body is fine; the ending type just defaults.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.EndingType == "" {
		req.EndingType = "debug_end"
	}

	if !h.session.IsActive() {
		Error(w, http.StatusConflict, "session is not active")
		return
	}
	h.session.EndSession(req.EndingType, nil)
	JSON(w, http.StatusOK, h.session.Summary())
}

// SendTestMessage queues a canned agent message.
func (h *Handler) SendTestMessage(w http.ResponseWriter, r *http.Request) {
	id := h.agent.SendTestMessage()
	if id == "" {
		Error(w, http.StatusConflict, "conversation not initialized")
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"message_id": id})
}

// AdjustTrust applies a trust delta and returns the resulting level.
func (h *Handler) AdjustTrust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta *float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == nil {
		Error(w, http.StatusBadRequest, "delta is required")
		return
	}
	h.agent.UpdateTrustLevel(*req.Delta)
	JSON(w, http.StatusOK, map[string]float64{"trust_level": h.agent.TrustLevel()})
}

// DisconnectAgent simulates the agent dropping off.
func (h *Handler) DisconnectAgent(w http.ResponseWriter, r *http.Request) {
	h.agent.SimulateDisconnection()
	JSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

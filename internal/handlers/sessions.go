package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/debrief"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Engine is the orchestrator surface the HTTP layer needs.
type Engine interface {
	StartSession(ctx context.Context, profile state.PlayerProfile, moduleID, scenarioID string) (*state.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*state.Session, error)
	SubmitTurn(ctx context.Context, id uuid.UUID, text string) (*state.Session, error)
	RetrySession(ctx context.Context, id uuid.UUID) (*state.Session, error)
	GetDebrief(ctx context.Context, id uuid.UUID) (debrief.Debrief, error)
	ListModules() []scenario.Module
	GetModule(id string) (scenario.Module, error)
}

type StartSessionRequest struct {
	PlayerProfile state.PlayerProfile `json:"player_profile"`
	ModuleID      string              `json:"module_id"`
	ScenarioID    string              `json:"scenario_id,omitempty"`
}

type SubmitTurnRequest struct {
	PlayerChoice string `json:"player_choice"`
}

type SessionHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewSessionHandler(engine Engine, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{engine: engine, logger: logger}
}

// ServeHTTP routes session requests.
// Routes:
// POST /v1/sessions                - Start a session
// GET  /v1/sessions/{id}           - Read a session
// POST /v1/sessions/{id}/turns     - Submit a turn
// POST /v1/sessions/{id}/retry     - Restart a lost session
// GET  /v1/sessions/{id}/debrief   - Debrief a finished session
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, r, http.MethodPost)
			return
		}
		h.handleStart(w, r)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		writeErrorMessage(w, h.logger, http.StatusNotFound, "Unknown session resource")
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", parts[0], "error", err)
		writeErrorMessage(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			h.methodNotAllowed(w, r, http.MethodGet)
			return
		}
		h.respondSession(w, r, id)(h.engine.GetSession(r.Context(), id))
	case "turns":
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, r, http.MethodPost)
			return
		}
		h.handleTurn(w, r, id)
	case "retry":
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, r, http.MethodPost)
			return
		}
		h.respondSession(w, r, id)(h.engine.RetrySession(r.Context(), id))
	case "debrief":
		if r.Method != http.MethodGet {
			h.methodNotAllowed(w, r, http.MethodGet)
			return
		}
		d, err := h.engine.GetDebrief(r.Context(), id)
		if err != nil {
			writeError(w, h.logger.With("session_id", id), err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, d)
	default:
		writeErrorMessage(w, h.logger, http.StatusNotFound, "Unknown session resource")
	}
}

func (h *SessionHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sess, err := h.engine.StartSession(r.Context(), req.PlayerProfile, req.ModuleID, req.ScenarioID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID.String())
	writeJSON(w, h.logger, http.StatusCreated, sess.View())
}

func (h *SessionHandler) handleTurn(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req SubmitTurnRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondSession(w, r, id)(h.engine.SubmitTurn(r.Context(), id, req.PlayerChoice))
}

// respondSession writes the player-facing view of a session result.
func (h *SessionHandler) respondSession(w http.ResponseWriter, r *http.Request, id uuid.UUID) func(*state.Session, error) {
	return func(sess *state.Session, err error) {
		if err != nil {
			writeError(w, h.logger.With("session_id", id, "path", r.URL.Path), err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, sess.View())
	}
}

func (h *SessionHandler) methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	h.logger.Warn("Method not allowed for session endpoint", "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Allow", allow)
	writeErrorMessage(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported method: "+allow)
}

package handlers

import (
	"log/slog"
	"net/http"
	"strings"
)

type ModuleHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewModuleHandler(engine Engine, logger *slog.Logger) *ModuleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModuleHandler{engine: engine, logger: logger}
}

// ServeHTTP handles GET /v1/modules and GET /v1/modules/{id}.
func (h *ModuleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeErrorMessage(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/modules"), "/")
	if id == "" {
		writeJSON(w, h.logger, http.StatusOK, map[string]any{"modules": h.engine.ListModules()})
		return
	}
	if strings.Contains(id, "/") {
		writeErrorMessage(w, h.logger, http.StatusNotFound, "Unknown module resource")
		return
	}
	mod, err := h.engine.GetModule(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, mod)
}

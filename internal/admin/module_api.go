package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// moduleOpResponse is the shared JSON response shape for every
// module-lifecycle endpoint.
type moduleOpResponse struct {
	Module string `json:"module"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if s.modules == nil {
			http.Error(w, "module registry not available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.modules.Names())
	}
}

// handleModuleOp returns a handler for POST /api/modules/{name}/<op> where
// op is one of load, unload, reload — mirroring the built-in "module" chat
// command's subcommands one-to-one (spec.md §4.F) so operators who are
// not in-game can drive the same Module Lifecycle operations remotely
// (SPEC_FULL.md §4.G).
func (s *Server) handleModuleOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if s.modules == nil {
			http.Error(w, "module registry not available", http.StatusServiceUnavailable)
			return
		}

		var err error
		switch op {
		case "load":
			err = s.modules.Load(r.Context(), name)
		case "unload":
			err = s.modules.Unload(r.Context(), name, false)
		case "reload":
			err = s.modules.Reload(r.Context(), name)
		}

		if s.metrics != nil {
			s.metrics.RecordLifecycle(op, err)
		}

		resp := moduleOpResponse{Module: name, OK: err == nil}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// importRequest is the JSON body for POST /api/modules/import, mirroring
// the chat command's "module import <name> <path>" (spec.md §4.F).
type importRequest struct {
	Name       string          `json:"name"`
	ModulePath string          `json:"module_path"`
	Config     json.RawMessage `json:"config,omitempty"`
}

func (s *Server) handleImportModule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.modules == nil {
			http.Error(w, "module registry not available", http.StatusServiceUnavailable)
			return
		}

		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		var raw []byte
		if len(req.Config) > 0 {
			raw = req.Config
		}

		_, err := s.modules.Import(req.Name, req.ModulePath, raw)
		if s.metrics != nil {
			s.metrics.RecordLifecycle("import", err)
		}

		resp := moduleOpResponse{Module: req.Name, OK: err == nil}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

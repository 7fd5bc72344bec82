package admin

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status, mirroring
// internal/gateway.StatusResponse's shape but reporting on the proxy
// connection state machine (spec.md §4.E) instead of an LLM provider
// chain.
type StatusResponse struct {
	Uptime  string   `json:"uptime"`
	State   string   `json:"state"`
	Modules []string `json:"modules"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: time.Since(s.startedAt).Truncate(time.Second).String(),
			State:  "unknown",
		}
		if s.conn != nil {
			resp.State = s.conn.State().String()
		}
		if s.modules != nil {
			resp.Modules = s.modules.Names()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sitewarden/sitewarden/internal/common"
)

// setupRoutes registers every API endpoint.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/plugins", s.handleListPlugins)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{slug}", s.handleGetProject)
	mux.HandleFunc("GET /api/projects/{slug}/snapshots", s.handleListSnapshots)
	mux.HandleFunc("POST /api/projects/{slug}/crawl", s.handleCrawl)
	mux.HandleFunc("POST /api/projects/{slug}/test-runs", s.handleRunTests)
	mux.HandleFunc("GET /api/projects/{slug}/results", s.handleListResults)
	mux.HandleFunc("GET /api/projects/{slug}/issues", s.handleListIssues)
	mux.HandleFunc("POST /api/projects/{slug}/issues/{id}/transition", s.handleTransitionIssue)

	mux.HandleFunc("GET /ws/events", s.handleWebsocket)

	return mux
}

// writeJSON writes a success payload.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the library error envelope onto an HTTP status and a
// structured body.
func writeError(w http.ResponseWriter, err error) {
	var env *common.Envelope
	if !errors.As(err, &env) {
		env = common.InternalError(err)
	}
	status := http.StatusInternalServerError
	switch env.Kind {
	case common.ErrUsage:
		status = http.StatusBadRequest
	case common.ErrNotFound:
		status = http.StatusNotFound
	case common.ErrResource:
		status = http.StatusConflict
	}
	writeJSON(w, status, env)
}

// decodeBody parses a JSON request body into v, tolerating an empty body.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err.Error() != "EOF" {
		return common.UsageError("invalid request body: %v", err)
	}
	return nil
}

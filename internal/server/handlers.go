package server

import (
	"net/http"
	"time"

	"github.com/sitewarden/sitewarden/internal/analyzers"
	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": common.GetVersion()})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.ListPlugins())
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.app.ListProjects()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.URL == "" {
		writeError(w, common.UsageError("url is required"))
		return
	}
	project, err := s.app.CreateProject(body.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.app.OpenProject(r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	ids, err := s.app.ListSnapshots(r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// crawlRequest carries per-crawl overrides; omitted fields fall back to the
// server configuration.
type crawlRequest struct {
	MaxPages        *int     `json:"max_pages,omitempty"`
	MaxDepth        *int     `json:"max_depth,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	RenderJS        *bool    `json:"render_js,omitempty"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var body crawlRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	opts := s.app.CrawlOptions()
	if body.MaxPages != nil {
		opts.MaxPages = *body.MaxPages
	}
	if body.MaxDepth != nil {
		opts.MaxDepth = *body.MaxDepth
	}
	if len(body.IncludePatterns) > 0 {
		opts.IncludePatterns = body.IncludePatterns
	}
	if len(body.ExcludePatterns) > 0 {
		opts.ExcludePatterns = body.ExcludePatterns
	}
	if body.RenderJS != nil {
		opts.RenderJS = *body.RenderJS
	}

	snapshot, err := s.app.Crawl(r.Context(), r.PathValue("slug"), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// testRunRequest selects analyzers and per-plugin configuration for one run.
type testRunRequest struct {
	SnapshotID  string                      `json:"snapshot_id,omitempty"`
	Plugins     []string                    `json:"plugins,omitempty"`
	Configs     map[string]analyzers.Config `json:"configs,omitempty"`
	TimeoutSecs int                         `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleRunTests(w http.ResponseWriter, r *http.Request) {
	var body testRunRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	report, err := s.app.RunTests(r.Context(), analyzers.RunRequest{
		Project:    r.PathValue("slug"),
		SnapshotID: body.SnapshotID,
		Plugins:    body.Plugins,
		Configs:    body.Configs,
		Timeout:    time.Duration(body.TimeoutSecs) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.app.ListResults(r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.app.ListIssues(
		r.PathValue("slug"),
		models.IssueStatus(r.URL.Query().Get("status")),
		r.URL.Query().Get("plugin"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleTransitionIssue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.IssueStatus `json:"status"`
		Actor  string             `json:"actor,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Status == "" {
		writeError(w, common.UsageError("status is required"))
		return
	}
	issue, err := s.app.TransitionIssue(r.PathValue("slug"), r.PathValue("id"), body.Status, body.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

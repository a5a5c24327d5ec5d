// Package workspace owns the on-disk project layout:
//
//	<root>/projects/<slug>/
//	  metadata.json
//	  issues.json
//	  snapshots/<ts>/
//	  test-results/<ts>.json
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

// Workspace is the root directory holding every project. At most one writer
// per project at a time (advisory lock); readers are unrestricted.
type Workspace struct {
	root   string
	logger arbor.ILogger
}

// New opens (creating if needed) a workspace root.
func New(root string, logger arbor.ILogger) (*Workspace, error) {
	if err := os.MkdirAll(filepath.Join(root, "projects"), 0755); err != nil {
		return nil, common.ResourceError(err, "failed to create workspace root %s", root)
	}
	return &Workspace{root: root, logger: logger}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// ProjectDir returns the directory for a slug without checking existence.
func (w *Workspace) ProjectDir(slug string) string {
	return filepath.Join(w.root, "projects", slug)
}

// Create initialises a project for the given root URL. Creating a project
// that already exists is a usage error.
func (w *Workspace) Create(rootURL string) (*models.Project, error) {
	slug, err := common.ProjectSlug(rootURL)
	if err != nil {
		return nil, common.UsageError("%v", err)
	}

	dir := w.ProjectDir(slug)
	if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err == nil {
		return nil, common.UsageError("project %q already exists", slug)
	}

	for _, sub := range []string{"snapshots", "test-results"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, common.ResourceError(err, "failed to create project %s", slug)
		}
	}

	now := time.Now().UTC()
	project := &models.Project{
		Slug:        slug,
		RootURL:     rootURL,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := w.saveMetadata(project); err != nil {
		return nil, err
	}

	w.logger.Info().Str("slug", slug).Str("root_url", rootURL).Msg("Project created")
	return project, nil
}

// Open loads an existing project by slug.
func (w *Workspace) Open(slug string) (*models.Project, error) {
	data, err := os.ReadFile(filepath.Join(w.ProjectDir(slug), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.NotFoundError("project %q not found", slug)
		}
		return nil, common.ResourceError(err, "failed to open project %s", slug)
	}
	var project models.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, common.ResourceError(err, "corrupt metadata for project %s", slug)
	}
	return &project, nil
}

// List returns every project in the workspace, sorted by slug.
func (w *Workspace) List() ([]*models.Project, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, "projects"))
	if err != nil {
		return nil, common.ResourceError(err, "failed to list projects")
	}
	var projects []*models.Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		project, err := w.Open(e.Name())
		if err != nil {
			w.logger.Warn().Str("slug", e.Name()).Err(err).Msg("Skipping unreadable project")
			continue
		}
		projects = append(projects, project)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Slug < projects[j].Slug })
	return projects, nil
}

// Touch bumps the project's last_updated stamp.
func (w *Workspace) Touch(slug string) error {
	project, err := w.Open(slug)
	if err != nil {
		return err
	}
	project.LastUpdated = time.Now().UTC()
	return w.saveMetadata(project)
}

func (w *Workspace) saveMetadata(project *models.Project) error {
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return common.InternalError(fmt.Errorf("marshal project metadata: %w", err))
	}
	path := filepath.Join(w.ProjectDir(project.Slug), "metadata.json")
	if err := writeFileAtomic(path, data); err != nil {
		return common.ResourceError(err, "failed to write metadata for %s", project.Slug)
	}
	return nil
}

// ListSnapshots returns the snapshot ids for a project, oldest first. Only
// sealed snapshots carry a .complete marker; unsealed ones are listed but
// flagged by OpenSnapshot.
func (w *Workspace) ListSnapshots(slug string) ([]string, error) {
	if _, err := w.Open(slug); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(w.ProjectDir(slug), "snapshots"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.ResourceError(err, "failed to list snapshots for %s", slug)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids) // Snapshot ids are lexicographically sortable timestamps
	return ids, nil
}

// LatestSnapshot returns the newest sealed snapshot id for a project.
func (w *Workspace) LatestSnapshot(slug string) (string, error) {
	ids, err := w.ListSnapshots(slug)
	if err != nil {
		return "", err
	}
	for i := len(ids) - 1; i >= 0; i-- {
		sealed, err := snapshotSealed(w.snapshotDir(slug, ids[i]))
		if err == nil && sealed {
			return ids[i], nil
		}
	}
	return "", common.NotFoundError("project %q has no sealed snapshot", slug)
}

func (w *Workspace) snapshotDir(slug, id string) string {
	return filepath.Join(w.ProjectDir(slug), "snapshots", id)
}

// DeleteSnapshot removes a snapshot wholesale. Results referencing it stay
// valid: they hold the id only.
func (w *Workspace) DeleteSnapshot(slug, id string) error {
	dir := w.snapshotDir(slug, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return common.NotFoundError("snapshot %q not found in project %q", id, slug)
	}
	if err := os.RemoveAll(dir); err != nil {
		return common.ResourceError(err, "failed to delete snapshot %s/%s", slug, id)
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never observe
// a torn file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

// Snapshot is the read-only view of a sealed crawl that analyzers consume.
// Page content is loaded lazily from disk.
type Snapshot struct {
	ID      string
	Dir     string
	Summary models.SnapshotSummary
	Sitemap models.Sitemap

	pages []*models.PageMeta
}

func snapshotSealed(dir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, markerComplete)); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return false, nil
}

// OpenSnapshot opens a sealed snapshot read-only. Unsealed snapshots are
// treated as in-progress and refused.
func (w *Workspace) OpenSnapshot(slug, id string) (*Snapshot, error) {
	dir := w.snapshotDir(slug, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, common.NotFoundError("snapshot %q not found in project %q", id, slug)
	}
	sealed, err := snapshotSealed(dir)
	if err != nil {
		return nil, common.ResourceError(err, "failed to inspect snapshot %s", id)
	}
	if !sealed {
		return nil, common.UsageError("snapshot %q is not sealed (crawl in progress or aborted)", id)
	}

	snap := &Snapshot{ID: id, Dir: dir}
	if err := readJSON(filepath.Join(dir, "summary.json"), &snap.Summary); err != nil {
		return nil, common.ResourceError(err, "failed to read summary for snapshot %s", id)
	}
	if err := readJSON(filepath.Join(dir, "sitemap.json"), &snap.Sitemap); err != nil {
		return nil, common.ResourceError(err, "failed to read sitemap for snapshot %s", id)
	}

	pagesDir := filepath.Join(dir, "pages")
	entries, err := os.ReadDir(pagesDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, common.ResourceError(err, "failed to list pages for snapshot %s", id)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta models.PageMeta
		if err := readJSON(filepath.Join(pagesDir, e.Name(), "meta.json"), &meta); err != nil {
			continue // A torn page directory is skipped, not fatal
		}
		snap.pages = append(snap.pages, &meta)
	}
	sort.Slice(snap.pages, func(i, j int) bool { return snap.pages[i].URL < snap.pages[j].URL })

	return snap, nil
}

// Pages returns page metadata sorted by URL for deterministic analyzer
// iteration.
func (s *Snapshot) Pages() []*models.PageMeta {
	return s.pages
}

// Page returns the metadata for one URL, or nil.
func (s *Snapshot) Page(url string) *models.PageMeta {
	for _, p := range s.pages {
		if p.URL == url {
			return p
		}
	}
	return nil
}

// Raw returns the raw HTML artefact for a page.
func (s *Snapshot) Raw(meta *models.PageMeta) (string, error) {
	return s.artefact(meta, "raw.html")
}

// Cleaned returns the cleaned HTML artefact for a page.
func (s *Snapshot) Cleaned(meta *models.PageMeta) (string, error) {
	return s.artefact(meta, "cleaned.html")
}

// Markdown returns the markdown artefact for a page.
func (s *Snapshot) Markdown(meta *models.PageMeta) (string, error) {
	return s.artefact(meta, "content.md")
}

func (s *Snapshot) artefact(meta *models.PageMeta, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, meta.PageDir, name))
	if err != nil {
		return "", common.ResourceError(err, "failed to read %s for %s", name, meta.URL)
	}
	return string(data), nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

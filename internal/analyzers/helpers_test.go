package analyzers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// Test helper - page whose cleaned projection equals its raw HTML
func seedPage(url, html string) *models.Page {
	return &models.Page{
		PageMeta: models.PageMeta{
			URL:        url,
			FinalURL:   url,
			HTTPStatus: 200,
			FetchedAt:  time.Now().UTC(),
		},
		ContentRaw:     html,
		ContentCleaned: html,
	}
}

// Test helper - workspace with one project and one sealed snapshot
func seedSnapshot(t *testing.T, pages []*models.Page, extraEntries ...models.SitemapEntry) (*workspace.Workspace, string, string) {
	t.Helper()
	logger := arbor.NewLogger()

	ws, err := workspace.New(t.TempDir(), logger)
	require.NoError(t, err)
	project, err := ws.Create("https://example.com/")
	require.NoError(t, err)

	id := workspace.NewSnapshotID(time.Now())
	writer, err := workspace.NewSnapshotWriter(ws.ProjectDir(project.Slug), id, project.RootURL, logger)
	require.NoError(t, err)

	entries := make([]models.SitemapEntry, 0, len(pages)+len(extraEntries))
	for _, p := range pages {
		require.NoError(t, writer.WritePage(p))
		entries = append(entries, models.SitemapEntry{URL: p.URL, Depth: p.Depth, Crawled: true, Status: p.HTTPStatus})
	}
	entries = append(entries, extraEntries...)

	_, err = writer.Seal(models.SnapshotComplete, "", true, nil, entries)
	require.NoError(t, err)
	return ws, project.Slug, id
}

// Test helper - open a sealed snapshot built from the given pages
func openSeeded(t *testing.T, pages ...*models.Page) *workspace.Snapshot {
	t.Helper()
	ws, slug, id := seedSnapshot(t, pages)
	snap, err := ws.OpenSnapshot(slug, id)
	require.NoError(t, err)
	return snap
}

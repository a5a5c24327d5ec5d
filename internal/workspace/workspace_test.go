package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
)

// Test helper - fresh workspace in a temp dir
func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	return ws
}

func TestWorkspaceCreateAndOpen(t *testing.T) {
	ws := newTestWorkspace(t)

	project, err := ws.Create("https://example.com/docs")
	require.NoError(t, err)
	assert.Equal(t, "example-com-docs", project.Slug)
	assert.Equal(t, "https://example.com/docs", project.RootURL)
	assert.False(t, project.CreatedAt.IsZero())

	opened, err := ws.Open(project.Slug)
	require.NoError(t, err)
	assert.Equal(t, project.Slug, opened.Slug)
	assert.Equal(t, project.RootURL, opened.RootURL)
}

func TestWorkspaceCreateDuplicate(t *testing.T) {
	ws := newTestWorkspace(t)

	_, err := ws.Create("https://example.com")
	require.NoError(t, err)
	_, err = ws.Create("https://example.com")
	require.Error(t, err, "same root URL maps to the same slug")
}

func TestWorkspaceOpenMissing(t *testing.T) {
	ws := newTestWorkspace(t)
	_, err := ws.Open("no-such-project")
	require.Error(t, err)
}

func TestWorkspaceListSorted(t *testing.T) {
	ws := newTestWorkspace(t)

	for _, u := range []string{"https://zeta.com", "https://alpha.com", "https://mid.com"} {
		_, err := ws.Create(u)
		require.NoError(t, err)
	}

	projects, err := ws.List()
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "alpha-com", projects[0].Slug)
	assert.Equal(t, "mid-com", projects[1].Slug)
	assert.Equal(t, "zeta-com", projects[2].Slug)
}

func TestWorkspaceTouch(t *testing.T) {
	ws := newTestWorkspace(t)

	project, err := ws.Create("https://example.com")
	require.NoError(t, err)
	before := project.LastUpdated

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ws.Touch(project.Slug))

	after, err := ws.Open(project.Slug)
	require.NoError(t, err)
	assert.True(t, after.LastUpdated.After(before))
}

func TestProjectLockExclusive(t *testing.T) {
	ws := newTestWorkspace(t)
	project, err := ws.Create("https://example.com")
	require.NoError(t, err)

	lock, err := ws.LockProject(project.Slug)
	require.NoError(t, err)

	_, err = ws.LockProject(project.Slug)
	require.Error(t, err, "second writer must be refused")

	lock.Release()
	lock2, err := ws.LockProject(project.Slug)
	require.NoError(t, err)
	lock2.Release()
	lock2.Release() // Double release is harmless
}

func TestListSnapshotsAndLatest(t *testing.T) {
	ws := newTestWorkspace(t)
	logger := arbor.NewLogger()
	project, err := ws.Create("https://example.com")
	require.NoError(t, err)

	_, err = ws.LatestSnapshot(project.Slug)
	require.Error(t, err, "no sealed snapshot yet")

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id := NewSnapshotID(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, id)
		w, err := NewSnapshotWriter(ws.ProjectDir(project.Slug), id, project.RootURL, logger)
		require.NoError(t, err)
		if i < 2 {
			// Leave the last one unsealed.
			_, err = w.Seal(models.SnapshotComplete, "", true, nil, nil)
			require.NoError(t, err)
		}
	}

	listed, err := ws.ListSnapshots(project.Slug)
	require.NoError(t, err)
	assert.Equal(t, ids, listed, "all snapshots listed oldest first, sealed or not")

	latest, err := ws.LatestSnapshot(project.Slug)
	require.NoError(t, err)
	assert.Equal(t, ids[1], latest, "latest must skip unsealed snapshots")

	_, err = ws.OpenSnapshot(project.Slug, ids[2])
	require.Error(t, err, "unsealed snapshot refuses to open")
}

func TestDeleteSnapshot(t *testing.T) {
	ws := newTestWorkspace(t)
	logger := arbor.NewLogger()
	project, err := ws.Create("https://example.com")
	require.NoError(t, err)

	id := NewSnapshotID(time.Now())
	w, err := NewSnapshotWriter(ws.ProjectDir(project.Slug), id, project.RootURL, logger)
	require.NoError(t, err)
	_, err = w.Seal(models.SnapshotComplete, "", true, nil, nil)
	require.NoError(t, err)

	require.NoError(t, ws.DeleteSnapshot(project.Slug, id))
	err = ws.DeleteSnapshot(project.Slug, id)
	require.Error(t, err)
}

package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewarden/sitewarden/internal/models"
)

// Test helper - minimal test result
func testResult(plugin string, started time.Time, status models.ResultStatus, findings ...models.Finding) *models.TestResult {
	return &models.TestResult{
		PluginName: plugin,
		SnapshotID: "20260825T100000Z",
		StartedAt:  started,
		Status:     status,
		Summary:    "test",
		Findings:   findings,
	}
}

func TestResultStoreAppendAndList(t *testing.T) {
	ws := newTestWorkspace(t)
	project, err := ws.Create("https://example.com")
	require.NoError(t, err)
	rs := ws.Results(project.Slug)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := rs.Append(testResult("seo-audit", base.Add(time.Duration(i)*time.Second), models.ResultPass))
		require.NoError(t, err)
	}

	results, err := rs.List()
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.True(t, results[i].StartedAt.After(results[i-1].StartedAt), "results must list oldest first")
	}
}

func TestResultStoreCollisionBumps(t *testing.T) {
	ws := newTestWorkspace(t)
	project, err := ws.Create("https://example.com")
	require.NoError(t, err)
	rs := ws.Results(project.Slug)

	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	name1, err := rs.Append(testResult("seo-audit", at, models.ResultPass))
	require.NoError(t, err)
	name2, err := rs.Append(testResult("seo-audit", at, models.ResultFail))
	require.NoError(t, err)
	assert.NotEqual(t, name1, name2, "identical timestamps must not overwrite")

	results, err := rs.List()
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestResultStoreLatest(t *testing.T) {
	ws := newTestWorkspace(t)
	project, err := ws.Create("https://example.com")
	require.NoError(t, err)
	rs := ws.Results(project.Slug)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	_, err = rs.Append(testResult("seo-audit", base, models.ResultPass))
	require.NoError(t, err)
	_, err = rs.Append(testResult("security-audit", base.Add(time.Second), models.ResultFail))
	require.NoError(t, err)
	_, err = rs.Append(testResult("seo-audit", base.Add(2*time.Second), models.ResultWarning))
	require.NoError(t, err)

	latest, err := rs.Latest("seo-audit")
	require.NoError(t, err)
	assert.Equal(t, models.ResultWarning, latest.Status)

	_, err = rs.Latest("no-such-plugin")
	require.Error(t, err)
}

func TestCompareResults(t *testing.T) {
	base := time.Now().UTC()
	fA := models.Finding{URL: "https://example.com/a", Category: "missing_title", Title: "Missing title"}
	fB := models.Finding{URL: "https://example.com/b", Category: "missing_title", Title: "Missing title"}
	fC := models.Finding{URL: "https://example.com/c", Category: "thin_content", Title: "Thin content"}

	before := testResult("seo-audit", base, models.ResultFail, fA, fB)
	after := testResult("seo-audit", base.Add(time.Minute), models.ResultFail, fB, fC)

	diff, err := Compare(before, after)
	require.NoError(t, err)
	assert.Equal(t, []models.Finding{fC}, diff.NewFindings)
	assert.Equal(t, []models.Finding{fA}, diff.ClearedFindings)
	assert.Equal(t, models.ResultFail, diff.StatusBefore)

	_, err = Compare(before, testResult("security-audit", base, models.ResultPass))
	require.Error(t, err, "cross-plugin comparison is a usage error")
}

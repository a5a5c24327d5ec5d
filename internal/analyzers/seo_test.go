package analyzers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
)

// Test helper - categories present in a result
func categories(result *models.TestResult) map[string]int {
	out := make(map[string]int)
	for _, f := range result.Findings {
		out[f.Category]++
	}
	return out
}

func TestSEOAuditPerPageChecks(t *testing.T) {
	good := `<html><head>
<title>A well sized page title for the SEO audit run</title>
<meta name="description" content="A description long enough to satisfy the minimum length check for meta descriptions.">
<link rel="sitemap" href="/sitemap.xml">
</head><body><h1>One</h1><h2>Two</h2><p>fine</p></body></html>`

	bad := `<html><head></head><body>
<h1>First</h1><h1>Second</h1>
<h3>Skipped level</h3>
<img src="/a.png"><img src="/b.png" alt="described">
</body></html>`

	snap := openSeeded(t,
		seedPage("https://example.com/good", good),
		seedPage("https://example.com/bad", bad),
	)

	a := NewSEOAudit(arbor.NewLogger())
	result, err := a.Analyze(context.Background(), snap, Config{})
	require.NoError(t, err)

	cats := categories(result)
	assert.Equal(t, 1, cats["missing-title"])
	assert.Equal(t, 1, cats["missing-description"], "only the bad page lacks a description")
	assert.Equal(t, 1, cats["multiple-h1"])
	assert.Equal(t, 1, cats["heading-hierarchy"])
	assert.Equal(t, 1, cats["missing-alt"])
	assert.Zero(t, cats["no-sitemap-reference"], "the good page references a sitemap")

	assert.Equal(t, models.ResultFail, result.Status, "a missing title is critical")
	score := result.Details["score"].(float64)
	assert.Less(t, score, 10.0)
	assert.Equal(t, 2, result.Details["pages_checked"])
}

func TestSEOAuditDuplicateTitlesSiteWide(t *testing.T) {
	page := func(url string) *models.Page {
		return seedPage(url, `<html><head><title>The same shared title on every page</title></head><body><h1>H</h1><p>text</p></body></html>`)
	}
	snap := openSeeded(t, page("https://example.com/a"), page("https://example.com/b"))

	a := NewSEOAudit(arbor.NewLogger())
	result, err := a.Analyze(context.Background(), snap, Config{})
	require.NoError(t, err)

	var dup *models.Finding
	for i := range result.Findings {
		if result.Findings[i].Category == "duplicate-title" {
			dup = &result.Findings[i]
		}
	}
	require.NotNil(t, dup)
	assert.True(t, dup.SiteWide, "duplicate titles are one site-level issue, not one per page")
	urls := dup.Detail["urls"].([]string)
	assert.Len(t, urls, 2)
}

func TestSEOAuditSkipsErrorPages(t *testing.T) {
	errPage := seedPage("https://example.com/gone", `<html><body>not found</body></html>`)
	errPage.HTTPStatus = 404
	snap := openSeeded(t, errPage)

	a := NewSEOAudit(arbor.NewLogger())
	result, err := a.Analyze(context.Background(), snap, Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Details["pages_checked"])
	assert.Zero(t, categories(result)["missing-title"])
}

func TestSEOAuditCleanSiteScoresHigh(t *testing.T) {
	html := `<html><head>
<title>A well sized page title for the SEO audit run</title>
<meta name="description" content="` + strings.Repeat("meta description text ", 4) + `">
<link rel="sitemap" href="/sitemap.xml">
</head><body><h1>Heading</h1><p>body text</p></body></html>`
	snap := openSeeded(t, seedPage("https://example.com/", html))

	a := NewSEOAudit(arbor.NewLogger())
	result, err := a.Analyze(context.Background(), snap, Config{})
	require.NoError(t, err)

	assert.Equal(t, models.ResultPass, result.Status)
	assert.Equal(t, 10.0, result.Details["score"].(float64))
}

func TestSEOScore(t *testing.T) {
	assert.Equal(t, 0.0, seoScore(0, nil, nil, nil), "no pages means no score")
	assert.Equal(t, 10.0, seoScore(3, nil, nil, nil))
	assert.Equal(t, 7.0, seoScore(3, []string{"a"}, []string{"b"}, nil))
	assert.Equal(t, 0.0, seoScore(1, make([]string, 6), nil, nil), "score floors at zero")
}

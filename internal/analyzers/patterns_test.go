package analyzers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
)

func TestPatternScannerDescribe(t *testing.T) {
	d := NewPatternScanner(arbor.NewLogger()).Describe()
	assert.Equal(t, "pattern-scanner", d.Name)
	assert.Contains(t, d.ConfigSpec, "patterns")
	assert.Contains(t, d.ConfigSpec, "patterns_file")
}

func TestPatternScannerReportsLineAndContext(t *testing.T) {
	content := "line one\n<marquee>hello</marquee>\nline three"
	snap := openSeeded(t, seedPage("https://example.com/legacy", content))

	s := NewPatternScanner(arbor.NewLogger())
	result, err := s.Analyze(context.Background(), snap, Config{
		"patterns": map[string]interface{}{"marquee": "<marquee"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ResultFail, result.Status, "any configured pattern present fails the run")
	require.Len(t, result.Findings, 1)
	f := result.Findings[0]
	assert.Equal(t, "marquee", f.Category)
	assert.Equal(t, "https://example.com/legacy", f.URL)
	assert.Equal(t, 2, f.Detail["line_number"])
	window := f.Detail["context"].(string)
	assert.Contains(t, window, "line one")
	assert.Contains(t, window, "line three")
}

func TestPatternScannerCaseSensitivity(t *testing.T) {
	snap := openSeeded(t, seedPage("https://example.com/p", "Uses <MARQUEE> markup"))
	s := NewPatternScanner(arbor.NewLogger())

	result, err := s.Analyze(context.Background(), snap, Config{
		"patterns": map[string]interface{}{"marquee": "<marquee"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Findings, 1, "case-insensitive by default")

	result, err = s.Analyze(context.Background(), snap, Config{
		"patterns":       map[string]interface{}{"marquee": "<marquee"},
		"case_sensitive": true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Equal(t, models.ResultPass, result.Status)
}

func TestPatternScannerMultipleMatches(t *testing.T) {
	snap := openSeeded(t,
		seedPage("https://example.com/a", "<blink>one</blink> and <blink>two</blink>"),
		seedPage("https://example.com/b", "clean page"),
	)
	s := NewPatternScanner(arbor.NewLogger())

	result, err := s.Analyze(context.Background(), snap, Config{
		"patterns": map[string]interface{}{"blink": "<blink>"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Findings, 2, "every occurrence is reported")
	assert.Equal(t, 2, result.Details["match_count"])
}

func TestPatternScannerPatternsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("font-tag: '<font'\nblink: '<blink>'\n"), 0644))

	snap := openSeeded(t, seedPage("https://example.com/a", `<font color="red">old</font>`))
	s := NewPatternScanner(arbor.NewLogger())

	result, err := s.Analyze(context.Background(), snap, Config{"patterns_file": path})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "font-tag", result.Findings[0].Category)
}

func TestPatternScannerErrors(t *testing.T) {
	snap := openSeeded(t, seedPage("https://example.com/a", "content"))
	s := NewPatternScanner(arbor.NewLogger())

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no patterns", cfg: Config{}},
		{name: "invalid regex", cfg: Config{"patterns": map[string]interface{}{"bad": "["}}},
		{name: "missing patterns file", cfg: Config{"patterns_file": "/no/such/file.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Analyze(context.Background(), snap, tt.cfg)
			require.Error(t, err)
		})
	}
}

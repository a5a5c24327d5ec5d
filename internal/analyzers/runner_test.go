package analyzers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/issues"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// stubAnalyzer lets runner tests script arbitrary plugin behaviour.
type stubAnalyzer struct {
	name    string
	analyze func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error)
}

func (s *stubAnalyzer) Describe() Description {
	return Description{
		Name:    s.name,
		Summary: "stub",
		ConfigSpec: map[string]ConfigField{
			"mode": {Type: "string", Description: "test knob"},
		},
	}
}

func (s *stubAnalyzer) Analyze(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
	return s.analyze(ctx, snap, cfg)
}

// Test helper - result with the given findings
func stubResult(findings ...models.Finding) *models.TestResult {
	r := &models.TestResult{Status: statusFor(findings), Summary: "stub run", Findings: findings, Details: map[string]interface{}{}}
	return r
}

// Test helper - runner over a seeded workspace
func newTestRunner(t *testing.T, analyzers ...Analyzer) (*Runner, string) {
	t.Helper()
	ws, slug, _ := seedSnapshot(t, []*models.Page{seedPage("https://example.com/", "<html><body>hi</body></html>")})
	reg := NewRegistry()
	for _, a := range analyzers {
		reg.Register(a)
	}
	return NewRunner(ws, reg, nil, arbor.NewLogger()), slug
}

func TestRunnerPersistsResultsAndPromotesIssues(t *testing.T) {
	finding := models.Finding{URL: "https://example.com/", Category: "broken", Title: "Broken thing", Severity: models.SeverityHigh}
	hits := true
	stub := &stubAnalyzer{name: "stub", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		if hits {
			return stubResult(finding), nil
		}
		return stubResult(), nil
	}}
	runner, slug := newTestRunner(t, stub)

	report, err := runner.Run(context.Background(), RunRequest{Project: slug})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.ResultFail, report.Results[0].Status)
	assert.NotEmpty(t, report.SnapshotID, "defaults to the latest sealed snapshot")
	assert.True(t, report.HasFindings())
	require.NotNil(t, report.Promotion)
	assert.Len(t, report.Promotion.Opened, 1)

	// Second run with the finding gone auto-resolves the issue.
	hits = false
	report, err = runner.Run(context.Background(), RunRequest{Project: slug})
	require.NoError(t, err)
	assert.False(t, report.HasFindings())
	require.NotNil(t, report.Promotion)
	assert.Len(t, report.Promotion.Resolved, 1)

	results, err := runner.ws.Results(slug).List()
	require.NoError(t, err)
	assert.Len(t, results, 2, "every run appends to the result store")
}

func TestRunnerTimeout(t *testing.T) {
	slow := &stubAnalyzer{name: "slow", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		time.Sleep(2 * time.Second) // Well past the per-plugin budget
		return stubResult(), nil
	}}
	fast := &stubAnalyzer{name: "fast", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		return stubResult(), nil
	}}
	runner, slug := newTestRunner(t, slow, fast)

	report, err := runner.Run(context.Background(), RunRequest{Project: slug, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, models.ResultError, report.Results[0].Status)
	assert.Equal(t, "timeout", report.Results[0].Summary)
	assert.Equal(t, models.ResultPass, report.Results[1].Status, "a timed-out analyzer must not abort the rest")
}

func TestRunnerPanicIsolation(t *testing.T) {
	panicky := &stubAnalyzer{name: "panicky", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		panic("boom")
	}}
	calm := &stubAnalyzer{name: "calm", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		return stubResult(), nil
	}}
	runner, slug := newTestRunner(t, panicky, calm)

	report, err := runner.Run(context.Background(), RunRequest{Project: slug})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, models.ResultError, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Summary, "panicked")
	assert.Equal(t, models.ResultPass, report.Results[1].Status)
}

func TestRunnerCancellation(t *testing.T) {
	stub := &stubAnalyzer{name: "stub", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond) // Ensure the runner observes the context first
		return nil, ctx.Err()
	}}
	runner, slug := newTestRunner(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := runner.Run(ctx, RunRequest{Project: slug})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.ResultError, report.Results[0].Status)
	assert.Equal(t, "cancelled", report.Results[0].Summary)
}

func TestRunnerUnknownPluginFailsBeforeRunning(t *testing.T) {
	ran := false
	stub := &stubAnalyzer{name: "stub", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		ran = true
		return stubResult(), nil
	}}
	runner, slug := newTestRunner(t, stub)

	_, err := runner.Run(context.Background(), RunRequest{Project: slug, Plugins: []string{"stub", "no-such-plugin"}})
	require.Error(t, err)
	assert.False(t, ran, "an unknown plugin name must fail the run before any analyzer executes")

	results, err := runner.ws.Results(slug).List()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunnerRejectsUndeclaredConfigKeys(t *testing.T) {
	stub := &stubAnalyzer{name: "stub", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		return stubResult(), nil
	}}
	runner, slug := newTestRunner(t, stub)

	report, err := runner.Run(context.Background(), RunRequest{
		Project: slug,
		Configs: map[string]Config{"stub": {"unknown_key": true}},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.ResultError, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Summary, "unknown_key")
}

func TestRunnerErroredPluginNeverAutoResolves(t *testing.T) {
	finding := models.Finding{URL: "https://example.com/", Category: "broken", Title: "Broken thing"}
	fail := false
	stub := &stubAnalyzer{name: "stub", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		if fail {
			panic("transient crash")
		}
		return stubResult(finding), nil
	}}
	runner, slug := newTestRunner(t, stub)

	_, err := runner.Run(context.Background(), RunRequest{Project: slug})
	require.NoError(t, err)

	fail = true
	report, err := runner.Run(context.Background(), RunRequest{Project: slug})
	require.NoError(t, err)
	assert.Nil(t, report.Promotion, "an errored run produces no promotion at all")

	tracker := issues.NewTracker(runner.ws.ProjectDir(slug), arbor.NewLogger())
	open, err := tracker.List(models.IssueOpen, "")
	require.NoError(t, err)
	assert.Len(t, open, 1, "absence of findings from an errored run is not evidence")
}

func TestRunnerMissingProjectAndSnapshot(t *testing.T) {
	stub := &stubAnalyzer{name: "stub", analyze: func(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
		return stubResult(), nil
	}}
	runner, slug := newTestRunner(t, stub)

	_, err := runner.Run(context.Background(), RunRequest{Project: "no-such-project"})
	require.Error(t, err)

	_, err = runner.Run(context.Background(), RunRequest{Project: slug, SnapshotID: "19990101T000000Z"})
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a := &stubAnalyzer{name: "alpha"}
	b := &stubAnalyzer{name: "beta"}
	reg.Register(b)
	reg.Register(a)

	assert.Equal(t, []string{"beta", "alpha"}, reg.Names(), "registration order preserved")

	got, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, a, got)
	_, err = reg.Get("missing")
	require.Error(t, err)

	descs := reg.Describe()
	require.Len(t, descs, 2)
	assert.Equal(t, "alpha", descs[0].Name, "descriptions sorted by name")

	assert.Panics(t, func() { reg.Register(&stubAnalyzer{name: "alpha"}) })
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry(arbor.NewLogger())
	for _, name := range []string{"pattern-scanner", "seo-audit", "llm-discovery", "security-audit", "example-bug"} {
		_, err := reg.Get(name)
		assert.NoError(t, err, "built-in %s must be registered", name)
	}
}

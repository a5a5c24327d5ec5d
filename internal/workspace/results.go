package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

// ResultStore appends timestamped test results under
// <project>/test-results/<ts>.json. Results are append-only; nothing mutates
// a written file in place.
type ResultStore struct {
	dir string
}

// Results returns the result store for a project.
func (w *Workspace) Results(slug string) *ResultStore {
	return &ResultStore{dir: filepath.Join(w.ProjectDir(slug), "test-results")}
}

// Append persists one TestResult. The filename is the result's start
// timestamp at microsecond precision, bumped on the rare collision.
func (rs *ResultStore) Append(result *models.TestResult) (string, error) {
	if err := os.MkdirAll(rs.dir, 0755); err != nil {
		return "", common.ResourceError(err, "failed to create result store")
	}

	ts := result.StartedAt.UTC()
	for {
		name := ts.Format("20060102T150405.000000Z") + ".json"
		path := filepath.Join(rs.dir, name)
		if _, err := os.Stat(path); err == nil {
			ts = ts.Add(time.Microsecond)
			continue
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", common.InternalError(fmt.Errorf("marshal test result: %w", err))
		}
		if err := writeFileAtomic(path, data); err != nil {
			return "", common.ResourceError(err, "failed to write test result")
		}
		return name, nil
	}
}

// List returns every stored result, oldest first.
func (rs *ResultStore) List() ([]*models.TestResult, error) {
	entries, err := os.ReadDir(rs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.ResourceError(err, "failed to list test results")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var results []*models.TestResult
	for _, name := range names {
		var r models.TestResult
		if err := readJSON(filepath.Join(rs.dir, name), &r); err != nil {
			continue // Manually deleted or torn files are skipped
		}
		results = append(results, &r)
	}
	return results, nil
}

// Latest returns the most recent result for a plugin, or a not-found error.
func (rs *ResultStore) Latest(pluginName string) (*models.TestResult, error) {
	results, err := rs.List()
	if err != nil {
		return nil, err
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].PluginName == pluginName {
			return results[i], nil
		}
	}
	return nil, common.NotFoundError("no results for plugin %q", pluginName)
}

// ResultDiff compares two results of the same plugin.
type ResultDiff struct {
	PluginName      string           `json:"plugin_name"`
	StatusBefore    models.ResultStatus `json:"status_before"`
	StatusAfter     models.ResultStatus `json:"status_after"`
	NewFindings     []models.Finding `json:"new_findings"`
	ClearedFindings []models.Finding `json:"cleared_findings"`
}

// Compare diffs two results by finding identity (category + URL + title).
func Compare(before, after *models.TestResult) (*ResultDiff, error) {
	if before.PluginName != after.PluginName {
		return nil, common.UsageError("cannot compare results of different plugins (%s vs %s)", before.PluginName, after.PluginName)
	}
	key := func(f models.Finding) string {
		return f.Category + "\x00" + f.URL + "\x00" + f.Title
	}
	beforeSet := make(map[string]bool, len(before.Findings))
	for _, f := range before.Findings {
		beforeSet[key(f)] = true
	}
	afterSet := make(map[string]bool, len(after.Findings))
	for _, f := range after.Findings {
		afterSet[key(f)] = true
	}

	diff := &ResultDiff{
		PluginName:   before.PluginName,
		StatusBefore: before.Status,
		StatusAfter:  after.Status,
	}
	for _, f := range after.Findings {
		if !beforeSet[key(f)] {
			diff.NewFindings = append(diff.NewFindings, f)
		}
	}
	for _, f := range before.Findings {
		if !afterSet[key(f)] {
			diff.ClearedFindings = append(diff.ClearedFindings, f)
		}
	}
	return diff, nil
}

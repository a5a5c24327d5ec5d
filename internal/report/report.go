// Package report renders a project's latest test results and open issues
// into a shareable document, as HTML or PDF.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// Format selects the output document type.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Generator builds audit reports from a project's stored results and issues.
type Generator struct {
	ws     *workspace.Workspace
	logger arbor.ILogger
}

// NewGenerator creates a report generator.
func NewGenerator(ws *workspace.Workspace, logger arbor.ILogger) *Generator {
	return &Generator{ws: ws, logger: logger}
}

// Generate writes the report for a project into outDir and returns the file
// path. The report covers the most recent result per plugin plus every
// currently open or investigating issue.
func (g *Generator) Generate(slug string, format Format, outDir string) (string, error) {
	project, err := g.ws.Open(slug)
	if err != nil {
		return "", err
	}

	results, err := g.ws.Results(slug).List()
	if err != nil {
		return "", err
	}
	latest := latestPerPlugin(results)

	issues, err := loadOpenIssues(g.ws.ProjectDir(slug))
	if err != nil {
		return "", err
	}

	markdown := renderMarkdown(project, latest, issues)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", common.ResourceError(err, "failed to create report dir %s", outDir)
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")

	switch format {
	case FormatHTML:
		path := filepath.Join(outDir, fmt.Sprintf("%s-%s.html", slug, stamp))
		html, err := markdownToHTML(project.Slug, markdown)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(html), 0644); err != nil {
			return "", common.ResourceError(err, "failed to write report %s", path)
		}
		return path, nil
	case FormatPDF:
		path := filepath.Join(outDir, fmt.Sprintf("%s-%s.pdf", slug, stamp))
		if err := writePDF(path, project, latest, issues); err != nil {
			return "", err
		}
		return path, nil
	default:
		return "", common.UsageError("unknown report format %q (want html or pdf)", format)
	}
}

// latestPerPlugin keeps the newest result for each plugin, ordered by name.
func latestPerPlugin(results []*models.TestResult) []*models.TestResult {
	byPlugin := make(map[string]*models.TestResult)
	for _, r := range results {
		byPlugin[r.PluginName] = r // List is oldest first; the last wins
	}
	names := make([]string, 0, len(byPlugin))
	for name := range byPlugin {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*models.TestResult, 0, len(names))
	for _, name := range names {
		out = append(out, byPlugin[name])
	}
	return out
}

func loadOpenIssues(projectDir string) ([]*models.Issue, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, "issues.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.ResourceError(err, "failed to read issue register")
	}
	var reg models.IssueRegister
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, common.ResourceError(err, "corrupt issue register")
	}
	var open []*models.Issue
	for _, i := range reg.Issues {
		if i.Status.Active() {
			open = append(open, i)
		}
	}
	sort.Slice(open, func(a, b int) bool { return open[a].ID < open[b].ID })
	return open, nil
}

// renderMarkdown produces the report body; the HTML path runs it through
// goldmark, the PDF path re-renders the same data directly.
func renderMarkdown(project *models.Project, results []*models.TestResult, open []*models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Site analysis report: %s\n\n", project.Slug)
	fmt.Fprintf(&b, "Root URL: %s\n\n", project.RootURL)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	b.WriteString("## Latest test results\n\n")
	if len(results) == 0 {
		b.WriteString("No test runs recorded.\n\n")
	} else {
		b.WriteString("| Plugin | Status | Snapshot | Summary |\n|---|---|---|---|\n")
		for _, r := range results {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				r.PluginName, r.Status, r.SnapshotID, strings.ReplaceAll(r.Summary, "|", "\\|"))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Open issues (%d)\n\n", len(open))
	for _, i := range open {
		fmt.Fprintf(&b, "### [%s] %s\n\n", i.ID, i.Title)
		fmt.Fprintf(&b, "- Plugin: %s\n- Priority: %s\n- Status: %s\n- First detected: %s\n- Last seen: %s\n",
			i.PluginName, i.Priority, i.Status,
			i.FirstDetectedAt.Format(time.RFC3339), i.LastSeenAt.Format(time.RFC3339))
		if len(i.AffectedURLs) > 0 {
			b.WriteString("- Affected URLs:\n")
			for _, u := range i.AffectedURLs {
				fmt.Fprintf(&b, "  - %s\n", u)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// markdownToHTML wraps the goldmark rendering in a minimal standalone page.
func markdownToHTML(title, markdown string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", common.InternalError(fmt.Errorf("markdown render: %w", err))
	}
	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", title)
	page.WriteString("<style>body{font-family:sans-serif;max-width:60em;margin:2em auto;padding:0 1em}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}</style>\n")
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}

// writePDF renders the report with fpdf. Layout stays deliberately simple:
// headings, result lines, and issue blocks.
func writePDF(path string, project *models.Project, results []*models.TestResult, open []*models.Issue) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, fmt.Sprintf("Site analysis report: %s", project.Slug), "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, fmt.Sprintf("Root URL: %s", project.RootURL), "", "L", false)
	pdf.MultiCell(0, 5, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.MultiCell(0, 7, "Latest test results", "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	if len(results) == 0 {
		pdf.MultiCell(0, 5, "No test runs recorded.", "", "L", false)
	}
	for _, r := range results {
		pdf.MultiCell(0, 5, fmt.Sprintf("%s  [%s]  %s", r.PluginName, r.Status, r.Summary), "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.MultiCell(0, 7, fmt.Sprintf("Open issues (%d)", len(open)), "", "L", false)
	for _, i := range open {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s", i.ID, i.Title), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4.5, fmt.Sprintf("plugin=%s priority=%s status=%s first=%s last=%s",
			i.PluginName, i.Priority, i.Status,
			i.FirstDetectedAt.Format("2006-01-02"), i.LastSeenAt.Format("2006-01-02")), "", "L", false)
		for _, u := range i.AffectedURLs {
			pdf.MultiCell(0, 4.5, "  "+u, "", "L", false)
		}
		pdf.Ln(2)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return common.ResourceError(err, "failed to write pdf report %s", path)
	}
	return nil
}

package analyzers

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// SEOAudit runs the classic on-page checks over every page plus a handful of
// site-level checks, and folds them into a 0-10 score.
type SEOAudit struct {
	logger arbor.ILogger
}

// NewSEOAudit creates the SEO audit analyzer.
func NewSEOAudit(logger arbor.ILogger) *SEOAudit {
	return &SEOAudit{logger: logger}
}

func (a *SEOAudit) Describe() Description {
	return Description{
		Name:    "seo-audit",
		Summary: "Per-page title/description/heading/alt checks plus site-level duplicate and robots checks, scored 0-10",
	}
}

const (
	titleMinLen = 30
	titleMaxLen = 60
	descMinLen  = 50
	descMaxLen  = 160
)

func (a *SEOAudit) Analyze(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
	result := newResult("", "", snap.Summary.StartedAt)

	var critical, warnings, opportunities []string
	titles := make(map[string][]string)
	descriptions := make(map[string][]string)
	pagesChecked := 0

	addFinding := func(page string, severity models.FindingSeverity, category, msg string) {
		result.Findings = append(result.Findings, models.Finding{
			URL:      page,
			Category: category,
			Title:    msg,
			Severity: severity,
		})
		switch severity {
		case models.SeverityHigh:
			critical = append(critical, msg)
		case models.SeverityMedium:
			warnings = append(warnings, msg)
		default:
			opportunities = append(opportunities, msg)
		}
	}

	for _, page := range snap.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page.HTTPStatus >= 400 {
			continue
		}
		content, err := snap.Cleaned(page)
		if err != nil {
			continue
		}
		doc := parseDoc(content)
		if doc == nil {
			continue
		}
		pagesChecked++

		a.checkTitle(doc, page.URL, titles, addFinding)
		a.checkDescription(doc, page.URL, descriptions, addFinding)
		a.checkHeadings(doc, page.URL, addFinding)
		a.checkImageAlt(doc, page.URL, addFinding)
	}

	// Site-level: duplicate titles and descriptions across the snapshot.
	for title, urls := range titles {
		if len(urls) > 1 {
			result.Findings = append(result.Findings, models.Finding{
				URL:      urls[0],
				Category: "duplicate-title",
				Title:    fmt.Sprintf("title %q shared by %d pages", title, len(urls)),
				Severity: models.SeverityMedium,
				SiteWide: true,
				Detail:   map[string]interface{}{"title": title, "urls": urls},
			})
			warnings = append(warnings, fmt.Sprintf("duplicate title %q on %d pages", title, len(urls)))
		}
	}
	for desc, urls := range descriptions {
		if len(urls) > 1 {
			result.Findings = append(result.Findings, models.Finding{
				URL:      urls[0],
				Category: "duplicate-description",
				Title:    fmt.Sprintf("meta description shared by %d pages", len(urls)),
				Severity: models.SeverityLow,
				SiteWide: true,
				Detail:   map[string]interface{}{"description": desc, "urls": urls},
			})
			opportunities = append(opportunities, fmt.Sprintf("duplicate meta description on %d pages", len(urls)))
		}
	}

	a.checkSiteInfrastructure(snap, addFinding)

	score := seoScore(pagesChecked, critical, warnings, opportunities)
	result.Status = statusFor(result.Findings)
	result.Summary = fmt.Sprintf("SEO score %.1f/10: %d critical, %d warnings, %d opportunities",
		score, len(critical), len(warnings), len(opportunities))
	result.Details["score"] = score
	result.Details["critical"] = critical
	result.Details["warnings"] = warnings
	result.Details["opportunities"] = opportunities
	result.Details["pages_checked"] = pagesChecked
	return result, nil
}

type findingSink func(page string, severity models.FindingSeverity, category, msg string)

func (a *SEOAudit) checkTitle(doc *goquery.Document, pageURL string, titles map[string][]string, add findingSink) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	switch {
	case title == "":
		add(pageURL, models.SeverityHigh, "missing-title", fmt.Sprintf("%s has no <title>", pageURL))
	case len(title) < titleMinLen:
		add(pageURL, models.SeverityLow, "short-title", fmt.Sprintf("%s title is %d chars (recommended %d-%d)", pageURL, len(title), titleMinLen, titleMaxLen))
	case len(title) > titleMaxLen:
		add(pageURL, models.SeverityLow, "long-title", fmt.Sprintf("%s title is %d chars (recommended %d-%d)", pageURL, len(title), titleMinLen, titleMaxLen))
	}
	if title != "" {
		titles[title] = append(titles[title], pageURL)
	}
}

func (a *SEOAudit) checkDescription(doc *goquery.Document, pageURL string, descriptions map[string][]string, add findingSink) {
	desc, exists := doc.Find("meta[name='description']").Attr("content")
	desc = strings.TrimSpace(desc)
	switch {
	case !exists || desc == "":
		add(pageURL, models.SeverityMedium, "missing-description", fmt.Sprintf("%s has no meta description", pageURL))
		return
	case len(desc) < descMinLen:
		add(pageURL, models.SeverityLow, "short-description", fmt.Sprintf("%s meta description is %d chars (recommended %d-%d)", pageURL, len(desc), descMinLen, descMaxLen))
	case len(desc) > descMaxLen:
		add(pageURL, models.SeverityLow, "long-description", fmt.Sprintf("%s meta description is %d chars (recommended %d-%d)", pageURL, len(desc), descMinLen, descMaxLen))
	}
	descriptions[desc] = append(descriptions[desc], pageURL)
}

func (a *SEOAudit) checkHeadings(doc *goquery.Document, pageURL string, add findingSink) {
	h1Count := doc.Find("h1").Length()
	if h1Count == 0 {
		add(pageURL, models.SeverityMedium, "missing-h1", fmt.Sprintf("%s has no H1", pageURL))
	} else if h1Count > 1 {
		add(pageURL, models.SeverityMedium, "multiple-h1", fmt.Sprintf("%s has %d H1 elements", pageURL, h1Count))
	}

	// Heading levels must not skip downwards (h1 -> h3 without h2).
	prev := 0
	broken := false
	doc.Find("h1,h2,h3,h4,h5,h6").Each(func(_ int, s *goquery.Selection) {
		level := int(s.Nodes[0].Data[1] - '0')
		if prev > 0 && level > prev+1 {
			broken = true
		}
		prev = level
	})
	if broken {
		add(pageURL, models.SeverityLow, "heading-hierarchy", fmt.Sprintf("%s skips heading levels", pageURL))
	}
}

func (a *SEOAudit) checkImageAlt(doc *goquery.Document, pageURL string, add findingSink) {
	total := 0
	missing := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		total++
		if alt, exists := s.Attr("alt"); !exists || strings.TrimSpace(alt) == "" {
			missing++
		}
	})
	if total > 0 && missing > 0 {
		add(pageURL, models.SeverityLow, "missing-alt", fmt.Sprintf("%s: %d of %d images lack alt text", pageURL, missing, total))
	}
}

// checkSiteInfrastructure verifies robots.txt availability (observed during
// the crawl) and that at least one page references a sitemap.
func (a *SEOAudit) checkSiteInfrastructure(snap *workspace.Snapshot, add findingSink) {
	root := snap.Sitemap.Root

	if snap.Summary.RobotsEnabled {
		for _, host := range snap.Summary.RobotsFailures {
			add(root, models.SeverityLow, "robots-unreachable", fmt.Sprintf("robots.txt could not be fetched for host %s", host))
		}
	}

	sitemapReferenced := false
	for _, page := range snap.Pages() {
		content, err := snap.Cleaned(page)
		if err != nil {
			continue
		}
		if strings.Contains(content, "sitemap.xml") || strings.Contains(content, `rel="sitemap"`) {
			sitemapReferenced = true
			break
		}
	}
	if !sitemapReferenced {
		add(root, models.SeverityLow, "no-sitemap-reference", "no page references a sitemap")
	}
}

// seoScore maps the issue counts onto 0-10: criticals cost 2, warnings 1,
// opportunities 0.25, scaled softly by page count.
func seoScore(pages int, critical, warnings, opportunities []string) float64 {
	if pages == 0 {
		return 0
	}
	score := 10.0
	score -= 2.0 * float64(len(critical))
	score -= 1.0 * float64(len(warnings))
	score -= 0.25 * float64(len(opportunities))
	if score < 0 {
		score = 0
	}
	return score
}

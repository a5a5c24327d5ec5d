package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// LLMDiscoveryAudit checks how well pages expose machine-readable substance:
// meta description quality, JSON-LD structured data, heading hierarchy, and a
// minimum of substantive text. Language models assembling answers from
// crawled context lean on exactly these signals.
type LLMDiscoveryAudit struct {
	logger arbor.ILogger
}

// NewLLMDiscoveryAudit creates the LLM-discoverability analyzer.
func NewLLMDiscoveryAudit(logger arbor.ILogger) *LLMDiscoveryAudit {
	return &LLMDiscoveryAudit{logger: logger}
}

func (a *LLMDiscoveryAudit) Describe() Description {
	return Description{
		Name:    "llm-discovery",
		Summary: "Scores pages 0-10 on machine-readability: description quality, JSON-LD, heading structure, substantive word count",
	}
}

// Per-page deductions from 10. Thin content weighs most: a page without
// substance has nothing for a model to cite.
const (
	deductNoDescription   = 2.0
	deductPoorDescription = 1.0
	deductNoJSONLD        = 2.0
	deductBadHierarchy    = 1.5
	deductThinContent     = 2.5
	minSubstantiveWords   = 200
)

func (a *LLMDiscoveryAudit) Analyze(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
	result := newResult("", "", snap.Summary.StartedAt)

	pageScores := make(map[string]float64)
	var total float64
	pagesChecked := 0

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

		score := 10.0

		desc, _ := doc.Find("meta[name='description']").Attr("content")
		desc = strings.TrimSpace(desc)
		switch {
		case desc == "":
			score -= deductNoDescription
			result.Findings = append(result.Findings, models.Finding{
				URL: page.URL, Category: "no-description", Severity: models.SeverityMedium,
				Title: fmt.Sprintf("%s has no meta description for answer engines", page.URL),
			})
		case len(desc) < descMinLen:
			score -= deductPoorDescription
			result.Findings = append(result.Findings, models.Finding{
				URL: page.URL, Category: "poor-description", Severity: models.SeverityLow,
				Title: fmt.Sprintf("%s meta description too short to summarise the page", page.URL),
			})
		}

		// JSON-LD lives in <script> blocks, which the cleaned projection
		// strips; read it from the raw artefact.
		rawDoc := doc
		if raw, err := snap.Raw(page); err == nil {
			if d := parseDoc(raw); d != nil {
				rawDoc = d
			}
		}
		if !hasValidJSONLD(rawDoc) {
			score -= deductNoJSONLD
			result.Findings = append(result.Findings, models.Finding{
				URL: page.URL, Category: "no-structured-data", Severity: models.SeverityMedium,
				Title: fmt.Sprintf("%s carries no JSON-LD structured data", page.URL),
			})
		}

		if brokenHierarchy(doc) {
			score -= deductBadHierarchy
			result.Findings = append(result.Findings, models.Finding{
				URL: page.URL, Category: "heading-hierarchy", Severity: models.SeverityLow,
				Title: fmt.Sprintf("%s heading structure is not a clean outline", page.URL),
			})
		}

		words := wordCount(visibleText(doc))
		if words < minSubstantiveWords {
			score -= deductThinContent
			result.Findings = append(result.Findings, models.Finding{
				URL: page.URL, Category: "thin-content", Severity: models.SeverityMedium,
				Title:  fmt.Sprintf("%s has only %d words of visible text", page.URL, words),
				Detail: map[string]interface{}{"word_count": words, "minimum": minSubstantiveWords},
			})
		}

		if score < 0 {
			score = 0
		}
		pageScores[page.URL] = score
		total += score
	}

	siteScore := 0.0
	if pagesChecked > 0 {
		siteScore = total / float64(pagesChecked)
	}

	result.Status = statusFor(result.Findings)
	result.Summary = fmt.Sprintf("LLM discoverability score %.1f/10 over %d pages", siteScore, pagesChecked)
	result.Details["score"] = siteScore
	result.Details["page_scores"] = pageScores
	result.Details["pages_checked"] = pagesChecked
	return result, nil
}

// hasValidJSONLD reports whether any ld+json block parses as JSON.
func hasValidJSONLD(doc *goquery.Document) bool {
	found := false
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v interface{}
		if err := json.Unmarshal([]byte(s.Text()), &v); err == nil {
			found = true
			return false
		}
		return true
	})
	return found
}

func brokenHierarchy(doc *goquery.Document) bool {
	prev := 0
	broken := false
	doc.Find("h1,h2,h3,h4,h5,h6").Each(func(_ int, s *goquery.Selection) {
		level := int(s.Nodes[0].Data[1] - '0')
		if prev > 0 && level > prev+1 {
			broken = true
		}
		prev = level
	})
	return broken
}

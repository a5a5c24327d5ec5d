package analyzers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/crawler"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// ExampleBugFinder takes a seed page known to display a rendering bug,
// extracts (or is told) the offending text, derives a tolerant regex family
// from it, and reports every page in the snapshot with a structurally similar
// occurrence.
type ExampleBugFinder struct {
	logger arbor.ILogger
}

// NewExampleBugFinder creates the example-bug finder.
func NewExampleBugFinder(logger arbor.ILogger) *ExampleBugFinder {
	return &ExampleBugFinder{logger: logger}
}

type exampleBugConfig struct {
	SeedURL string `json:"seed_url" validate:"required"`
	BugText string `json:"bug_text"`
}

func (f *ExampleBugFinder) Describe() Description {
	return Description{
		Name:    "example-bug",
		Summary: "Extracts a bug pattern from a seed page and finds structurally similar occurrences across the snapshot",
		ConfigSpec: map[string]ConfigField{
			"seed_url": {
				Type:        "string",
				Required:    true,
				Description: "URL of a crawled page exhibiting the bug",
			},
			"bug_text": {
				Type:        "string",
				Description: "The offending text; auto-extracted from the seed page when omitted",
			},
		},
	}
}

func (f *ExampleBugFinder) Analyze(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
	var conf exampleBugConfig
	if err := DecodeConfig(cfg, &conf); err != nil {
		return nil, err
	}

	seedNorm, err := crawler.Normalize(conf.SeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid seed_url: %w", err)
	}
	seedPage := snap.Page(seedNorm)
	if seedPage == nil {
		seedPage = snap.Page(conf.SeedURL)
	}
	if seedPage == nil {
		return nil, fmt.Errorf("seed page %s is not in the snapshot", conf.SeedURL)
	}

	bugText := strings.TrimSpace(conf.BugText)
	if bugText == "" {
		seedContent, err := snap.Cleaned(seedPage)
		if err != nil {
			return nil, err
		}
		bugText, err = AutoExtractBugText(seedContent)
		if err != nil {
			return nil, fmt.Errorf("auto-extraction failed: %w; retry with explicit bug_text", err)
		}
		f.logger.Info().Str("seed_url", seedNorm).Str("bug_text", truncate(bugText, 120)).Msg("Auto-extracted bug text")
	}

	family, err := GeneratePatternFamily(bugText)
	if err != nil {
		return nil, err
	}
	compiled := make([]*regexp.Regexp, len(family))
	for i, p := range family {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("derived pattern %q failed to compile: %w", p.Name, err)
		}
		compiled[i] = re
	}

	result := newResult("", "", snap.Summary.StartedAt)
	matchedPages := 0

	for _, page := range snap.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := snap.Cleaned(page)
		if err != nil {
			continue
		}
		text := visibleText(parseDoc(content))
		if text == "" {
			text = content
		}

		counts := make(map[string]int)
		structuralHit := false
		for i, re := range compiled {
			n := len(re.FindAllStringIndex(text, -1))
			if n == 0 {
				continue
			}
			counts[family[i].Name] = n
			if family[i].Weight >= structuralWeight {
				structuralHit = true
			}
		}

		// Precision over recall: field-presence patterns alone never report a
		// page; a structural pattern must have fired.
		if !structuralHit {
			continue
		}
		matchedPages++

		lines := splitLines(text)
		lineNumber := 1
		for i, re := range compiled {
			if family[i].Weight < structuralWeight {
				continue
			}
			if loc := re.FindStringIndex(text); loc != nil {
				lineNumber = lineOfOffset(text, loc[0])
				break
			}
		}

		result.Findings = append(result.Findings, models.Finding{
			URL:      page.URL,
			Category: "example-bug",
			Title:    fmt.Sprintf("bug pattern present on %s", page.URL),
			Severity: models.SeverityHigh,
			Detail: map[string]interface{}{
				"match_counts": counts,
				"line_number":  lineNumber,
				"context":      contextWindow(lines, lineNumber),
			},
		})
	}

	patternMeta := make([]map[string]interface{}, len(family))
	for i, p := range family {
		patternMeta[i] = map[string]interface{}{"name": p.Name, "regex": p.Regex, "weight": p.Weight}
	}

	result.Status = statusFor(result.Findings)
	result.Summary = fmt.Sprintf("%d of %d pages match the derived bug pattern family (%d patterns)",
		matchedPages, len(snap.Pages()), len(family))
	result.Details["seed_url"] = seedNorm
	result.Details["bug_text"] = bugText
	result.Details["patterns"] = patternMeta
	return result, nil
}

// Auto-extraction cascade, tried in order, stopping at first success.
var (
	doubleBracketRe = regexp.MustCompile(`(?:\[\[[\s\S]{2,400}?\]\]|\{\{[\s\S]{2,400}?\}\})`)
	jsonLikeRe      = regexp.MustCompile(`\{\s{0,10}"[A-Za-z0-9_-]{1,60}"\s{0,10}:[\s\S]{1,400}?\}`)
	percentEncRe    = regexp.MustCompile(`(?i)(?:%3C|%3E|%22|%7B|%7D|%5B|%5D)[^\s]{0,200}`)
	longTokenRe     = regexp.MustCompile(`\S{41,}`)
)

// AutoExtractBugText pulls the most likely rendering-bug artefact out of a
// seed page's cleaned HTML: double-bracket constructs first, then embedded
// JSON, then percent-encoded markup, then anomalously long unbroken tokens in
// paragraph text.
func AutoExtractBugText(cleanedHTML string) (string, error) {
	doc := parseDoc(cleanedHTML)
	text := visibleText(doc)
	if text == "" {
		text = cleanedHTML
	}

	if m := doubleBracketRe.FindString(text); m != "" {
		return m, nil
	}
	if m := jsonLikeRe.FindString(text); m != "" {
		return m, nil
	}
	if m := percentEncRe.FindString(text); m != "" {
		return m, nil
	}

	// Long tokens are only meaningful inside paragraph-ish text.
	if doc != nil {
		var found string
		doc.Find("p,div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := longTokenRe.FindString(s.Text()); m != "" {
				found = m
				return false
			}
			return true
		})
		if found != "" {
			return found, nil
		}
	} else if m := longTokenRe.FindString(text); m != "" {
		return m, nil
	}

	return "", fmt.Errorf("no double-bracket construct, embedded JSON, percent-encoded markup, or anomalous token found")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

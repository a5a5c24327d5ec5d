package analyzers

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// PatternScanner flags occurrences of configured regex patterns (deprecated
// markup, legacy embed codes, leftover template syntax) across every page of
// a snapshot.
type PatternScanner struct {
	logger arbor.ILogger
}

// NewPatternScanner creates the deprecated-pattern scanner.
func NewPatternScanner(logger arbor.ILogger) *PatternScanner {
	return &PatternScanner{logger: logger}
}

type patternScannerConfig struct {
	Patterns      map[string]string `json:"patterns"`
	PatternsFile  string            `json:"patterns_file"`
	CaseSensitive bool              `json:"case_sensitive"`
}

func (s *PatternScanner) Describe() Description {
	return Description{
		Name:    "pattern-scanner",
		Summary: "Searches every page for configured regex patterns and reports each match with line context",
		ConfigSpec: map[string]ConfigField{
			"patterns": {
				Type:        "map",
				Description: "Pattern name to regular expression",
			},
			"patterns_file": {
				Type:        "string",
				Description: "YAML file of name: regex pairs, merged under inline patterns",
			},
			"case_sensitive": {
				Type:        "bool",
				Default:     false,
				Description: "Match case sensitively",
			},
		},
	}
}

func (s *PatternScanner) Analyze(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
	var conf patternScannerConfig
	if err := DecodeConfig(cfg, &conf); err != nil {
		return nil, err
	}

	patterns := make(map[string]string)
	if conf.PatternsFile != "" {
		data, err := os.ReadFile(conf.PatternsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read patterns file: %w", err)
		}
		if err := yaml.Unmarshal(data, &patterns); err != nil {
			return nil, fmt.Errorf("failed to parse patterns file: %w", err)
		}
	}
	for name, expr := range conf.Patterns {
		patterns[name] = expr
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns configured")
	}

	compiled := make(map[string]*regexp.Regexp, len(patterns))
	names := make([]string, 0, len(patterns))
	for name, expr := range patterns {
		if !conf.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", name, err)
		}
		compiled[name] = re
		names = append(names, name)
	}
	sort.Strings(names)

	result := newResult("", "", snap.Summary.StartedAt)
	matchTotal := 0

	for _, page := range snap.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := snap.Cleaned(page)
		if err != nil {
			continue
		}
		lines := splitLines(content)

		for _, name := range names {
			re := compiled[name]
			for _, loc := range re.FindAllStringIndex(content, -1) {
				lineNumber := lineOfOffset(content, loc[0])
				result.Findings = append(result.Findings, models.Finding{
					URL:      page.URL,
					Category: name,
					Title:    fmt.Sprintf("pattern %q found on %s", name, page.URL),
					Severity: models.SeverityMedium,
					Detail: map[string]interface{}{
						"pattern":     name,
						"match":       content[loc[0]:loc[1]],
						"line_number": lineNumber,
						"context":     contextWindow(lines, lineNumber),
					},
				})
				matchTotal++
			}
		}
	}

	result.Status = statusFor(result.Findings)
	if result.Status != models.ResultPass {
		result.Status = models.ResultFail // Any configured pattern present is a failure
	}
	result.Summary = fmt.Sprintf("%d matches across %d pages for %d patterns", matchTotal, len(snap.Pages()), len(names))
	result.Details["patterns"] = names
	result.Details["match_count"] = matchTotal
	return result, nil
}

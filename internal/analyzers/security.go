package analyzers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// SecurityAudit inspects the snapshot for transport, header, cookie, and
// disclosure weaknesses. Everything is derived from captured responses; the
// audit performs no probing of its own.
type SecurityAudit struct {
	logger arbor.ILogger
}

// NewSecurityAudit creates the security audit analyzer.
func NewSecurityAudit(logger arbor.ILogger) *SecurityAudit {
	return &SecurityAudit{logger: logger}
}

func (a *SecurityAudit) Describe() Description {
	return Description{
		Name:    "security-audit",
		Summary: "HTTPS usage, mixed content, security headers, cookie flags, exposed paths, and HTML comment disclosure",
	}
}

// sensitivePaths are flagged when the crawl touched them and got a response.
var sensitivePaths = []string{"/.git", "/.env", "/.svn", "/admin", "/wp-admin", "/.htaccess", "/phpinfo.php", "/backup", "/config.php"}

// disclosureMarkers flag HTML comments that leak operational detail.
var disclosureMarkers = regexp.MustCompile(`(?i)(password|secret|api[_-]?key|todo|fixme|debug|internal use|staging|jdbc:|mysql://|postgres://)`)

var htmlComment = regexp.MustCompile(`<!--([\s\S]*?)-->`)

// mixedContentSrc matches http:// resource loads inside an HTTPS page.
var mixedContentSrc = regexp.MustCompile(`(?i)(?:src|href)\s*=\s*["']http://[^"']+\.(?:js|css|png|jpe?g|gif|svg|webp|woff2?)["']`)

func (a *SecurityAudit) Analyze(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error) {
	result := newResult("", "", snap.Summary.StartedAt)

	headerChecks := []struct {
		header   string
		category string
		severity models.FindingSeverity
	}{
		{"Content-Security-Policy", "missing-csp", models.SeverityMedium},
		{"Strict-Transport-Security", "missing-hsts", models.SeverityMedium},
		{"X-Frame-Options", "missing-x-frame-options", models.SeverityLow},
		{"X-Content-Type-Options", "missing-x-content-type-options", models.SeverityLow},
	}

	for _, page := range snap.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		headers := http.Header(page.ResponseHeaders)
		isHTTPS := strings.HasPrefix(page.URL, "https://")

		if !isHTTPS {
			result.Findings = append(result.Findings, models.Finding{
				URL: page.URL, Category: "insecure-transport", Severity: models.SeverityHigh,
				Title: fmt.Sprintf("%s is served over plain HTTP", page.URL),
			})
		}

		if page.HTTPStatus >= 400 {
			continue
		}

		for _, check := range headerChecks {
			if headers.Get(check.header) == "" {
				result.Findings = append(result.Findings, models.Finding{
					URL: page.URL, Category: check.category, Severity: check.severity,
					Title: fmt.Sprintf("%s lacks %s", page.URL, check.header),
				})
			}
		}

		for _, cookie := range headers.Values("Set-Cookie") {
			a.checkCookie(result, page.URL, cookie, isHTTPS)
		}

		raw, err := snap.Raw(page)
		if err != nil {
			continue
		}

		if isHTTPS {
			if m := mixedContentSrc.FindString(raw); m != "" {
				result.Findings = append(result.Findings, models.Finding{
					URL: page.URL, Category: "mixed-content", Severity: models.SeverityHigh,
					Title:  fmt.Sprintf("%s loads resources over plain HTTP", page.URL),
					Detail: map[string]interface{}{"sample": m},
				})
			}
		}

		for _, match := range htmlComment.FindAllStringSubmatch(raw, -1) {
			if disclosureMarkers.MatchString(match[1]) {
				snippet := strings.TrimSpace(match[1])
				if len(snippet) > 200 {
					snippet = snippet[:200]
				}
				result.Findings = append(result.Findings, models.Finding{
					URL: page.URL, Category: "comment-disclosure", Severity: models.SeverityMedium,
					Title:  fmt.Sprintf("%s has an HTML comment disclosing internal detail", page.URL),
					Detail: map[string]interface{}{"comment": snippet},
				})
				break // One finding per page is enough
			}
		}
	}

	// Exposed-path heuristics run over everything the crawl touched,
	// including discovered-but-uncrawled URLs.
	for _, entry := range snap.Sitemap.Pages {
		lower := strings.ToLower(entry.URL)
		for _, p := range sensitivePaths {
			if strings.Contains(lower, p) && (!entry.Crawled || entry.Status < 400) {
				result.Findings = append(result.Findings, models.Finding{
					URL: entry.URL, Category: "exposed-path", Severity: models.SeverityHigh,
					Title:  fmt.Sprintf("sensitive path %s is reachable at %s", p, entry.URL),
					Detail: map[string]interface{}{"path": p, "crawled": entry.Crawled, "status": entry.Status},
				})
				break
			}
		}
	}

	high, medium, low := severityCounts(result.Findings)
	result.Status = statusFor(result.Findings)
	result.Summary = fmt.Sprintf("security: %d high, %d medium, %d low findings", high, medium, low)
	result.Details["high"] = high
	result.Details["medium"] = medium
	result.Details["low"] = low
	return result, nil
}

// checkCookie parses one Set-Cookie header for the Secure, HttpOnly, and
// SameSite attributes.
func (a *SecurityAudit) checkCookie(result *models.TestResult, pageURL, setCookie string, isHTTPS bool) {
	parts := strings.Split(setCookie, ";")
	if len(parts) == 0 {
		return
	}
	name := strings.TrimSpace(strings.SplitN(parts[0], "=", 2)[0])
	if name == "" {
		return
	}

	var secure, httpOnly, sameSite bool
	for _, part := range parts[1:] {
		attr := strings.ToLower(strings.TrimSpace(part))
		switch {
		case attr == "secure":
			secure = true
		case attr == "httponly":
			httpOnly = true
		case strings.HasPrefix(attr, "samesite"):
			sameSite = true
		}
	}

	var missing []string
	if isHTTPS && !secure {
		missing = append(missing, "Secure")
	}
	if !httpOnly {
		missing = append(missing, "HttpOnly")
	}
	if !sameSite {
		missing = append(missing, "SameSite")
	}
	if len(missing) > 0 {
		result.Findings = append(result.Findings, models.Finding{
			URL: pageURL, Category: "cookie-flags", Severity: models.SeverityMedium,
			Title:  fmt.Sprintf("cookie %q on %s lacks %s", name, pageURL, strings.Join(missing, ", ")),
			Detail: map[string]interface{}{"cookie": name, "missing": missing},
		})
	}
}

func severityCounts(findings []models.Finding) (high, medium, low int) {
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityHigh:
			high++
		case models.SeverityMedium:
			medium++
		default:
			low++
		}
	}
	return
}

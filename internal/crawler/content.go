// -----------------------------------------------------------------------
// Content processing - HTML cleaning, markdown projection, link discovery
// -----------------------------------------------------------------------

package crawler

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/net/html"
)

// ContentProcessor turns raw HTML into the cleaned projection and the
// markdown projection stored with each page. Both projections are
// deterministic functions of their input, and cleaning is idempotent.
type ContentProcessor struct {
	logger arbor.ILogger
}

// NewContentProcessor creates a new content processor
func NewContentProcessor(logger arbor.ILogger) *ContentProcessor {
	return &ContentProcessor{logger: logger}
}

// droppedElements are removed wholesale during cleaning. <code> and <pre>
// contents are deliberately preserved verbatim: tolerant textual search over
// the cleaned projection depends on them.
var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
}

// presentationAttrs are stripped from every element during cleaning.
var presentationAttrs = map[string]bool{
	"style":    true,
	"class":    true,
	"bgcolor":  true,
	"color":    true,
	"align":    true,
	"valign":   true,
	"border":   true,
	"onclick":  true,
	"onload":   true,
	"onerror":  true,
	"onsubmit": true,
}

// Clean strips script/style/comment nodes and presentation attributes while
// preserving semantic content (headings, paragraphs, lists, images with alt).
func (p *ContentProcessor) Clean(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, sel := range doc.Nodes {
		cleanNode(sel)
	}

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render cleaned HTML: %w", err)
	}
	return cleaned, nil
}

// cleanNode removes dropped elements and comment nodes, and strips
// presentation attributes, depth-first.
func cleanNode(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && droppedElements[c.Data]:
			n.RemoveChild(c)
		default:
			cleanNode(c)
		}
	}
	if n.Type == html.ElementNode && len(n.Attr) > 0 {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if presentationAttrs[a.Key] || strings.HasPrefix(a.Key, "on") {
				continue
			}
			kept = append(kept, a)
		}
		n.Attr = kept
	}
}

// Markdown converts cleaned HTML into its markdown projection. Same input,
// same output.
func (p *ContentProcessor) Markdown(cleanedHTML, sourceURL string) (string, error) {
	domain := ""
	if u, err := url.Parse(sourceURL); err == nil {
		domain = u.Scheme + "://" + u.Host
	}
	converter := md.NewConverter(domain, true, nil)
	markdown, err := converter.ConvertString(cleanedHTML)
	if err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}
	return markdown, nil
}

// ExtractTitle pulls the page title: <title> first, then og:title, then the
// first h1.
func (p *ContentProcessor) ExtractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// ExtractLinks discovers <a href> targets resolved to absolute URLs.
// javascript:, mailto:, tel:, and fragment-only links are skipped; the caller
// normalises and filters the rest.
func (p *ContentProcessor) ExtractLinks(doc *goquery.Document, sourceURL string) []string {
	baseURL, err := url.Parse(sourceURL)
	if err != nil {
		p.logger.Warn().Err(err).Str("source_url", sourceURL).Msg("Failed to parse source URL for link resolution")
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "data:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := baseURL.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}

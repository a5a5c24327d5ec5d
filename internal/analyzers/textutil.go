package analyzers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// splitLines splits content for 1-based line addressing.
func splitLines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

// lineOfOffset returns the 1-based line number containing the byte offset.
func lineOfOffset(content string, offset int) int {
	if offset < 0 {
		return 1
	}
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n") + 1
}

// contextWindow returns up to 10 lines around the 1-based line number: five
// before, the line itself, and four after.
func contextWindow(lines []string, lineNumber int) string {
	start := lineNumber - 6 // 1-based, five lines of leading context
	if start < 0 {
		start = 0
	}
	end := start + 10
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// parseDoc parses HTML, tolerating failure by returning nil.
func parseDoc(htmlContent string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}
	return doc
}

// visibleText extracts the rendered-text projection of a document.
func visibleText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.TrimSpace(body.Text())
}

// wordCount counts whitespace-separated tokens.
func wordCount(text string) int {
	return len(strings.Fields(text))
}

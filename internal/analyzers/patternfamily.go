package analyzers

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/sitewarden/sitewarden/internal/models"
)

// quoteClass matches any of the seven quote variants that show up once
// content has been through editors, CMS filters, and entity encoders.
const quoteClass = "[\"'`‘’“”]"

// valueClass matches a field value of bounded length: anything up to the next
// quote. Bounded and non-greedy so a pathological page cannot trigger
// catastrophic backtracking.
const valueClass = "[^\"'`‘’“”]{0,200}?"

const structuralWeight = 1.0
const fieldWeight = 0.5
const looseWeight = 0.25

// jsonFieldRe extracts field names from JSON-ish seed text.
var jsonFieldRe = regexp.MustCompile("[\"'`‘’“”]([A-Za-z0-9_-]+)[\"'`‘’“”]\\s*:")

// GeneratePatternFamily derives 6-8 tolerant regexes from a seed substring.
// Quote runs become a class over the known variants, field values become
// bounded wildcards while field names stay literal, and every wildcard is
// non-greedy with an explicit length limit.
func GeneratePatternFamily(seed string) ([]models.Pattern, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, fmt.Errorf("empty seed text")
	}

	var family []models.Pattern
	add := func(name, expr string, weight float64) {
		if _, err := regexp.Compile(expr); err != nil {
			return // A malformed derivation is skipped, not fatal
		}
		family = append(family, models.Pattern{Name: name, Regex: expr, Weight: weight})
	}

	// Strict tolerant literal: structure and values intact, quotes and
	// whitespace tolerant.
	add("tolerant-literal", tolerantLiteral(seed), structuralWeight)

	// Opening-structure pattern anchored on the seed's lead-in.
	if open := openingStructure(seed); open != "" {
		add("opening-structure", open, structuralWeight)
	}

	fields := extractFieldNames(seed)

	// Full-structure pattern: field names literal, values wildcarded.
	if len(fields) > 0 {
		add("structure-fields", structureWithFields(seed, fields), structuralWeight)
	}

	// Per-field presence patterns, confirmatory only.
	for i, field := range fields {
		if i >= 4 {
			break
		}
		expr := quoteClass + "?" + regexp.QuoteMeta(field) + quoteClass + "?\\s{0,10}:\\s{0,10}" + quoteClass + "?" + valueClass + quoteClass + "?"
		add("field-"+field, expr, fieldWeight)
	}

	// Loose any-field pattern.
	if len(fields) > 1 {
		alternatives := make([]string, 0, len(fields))
		for _, f := range fields {
			alternatives = append(alternatives, regexp.QuoteMeta(f))
		}
		add("any-field", "(?:"+strings.Join(alternatives, "|")+")\\s{0,10}"+quoteClass+"?\\s{0,10}:", looseWeight)
	}

	if len(family) == 0 {
		return nil, fmt.Errorf("could not derive any pattern from seed %q", seed)
	}
	return family, nil
}

func isQuote(r rune) bool {
	switch r {
	case '"', '\'', '`', '‘', '’', '“', '”':
		return true
	}
	return false
}

// tolerantLiteral escapes the seed while widening quotes to the quote class
// and whitespace/punctuation spacing to small bounded gaps.
func tolerantLiteral(seed string) string {
	var b strings.Builder
	runes := []rune(seed)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case isQuote(r):
			// A run of quotes collapses to one class occurrence.
			for i+1 < len(runes) && isQuote(runes[i+1]) {
				i++
			}
			b.WriteString(quoteClass)
		case unicode.IsSpace(r):
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
			b.WriteString("\\s{0,10}")
		case r == ':' || r == ',' || r == '{' || r == '}' || r == '[' || r == ']':
			b.WriteString("\\s{0,10}")
			b.WriteString(regexp.QuoteMeta(string(r)))
			b.WriteString("\\s{0,10}")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// openingStructure derives a pattern for the seed's opening construct:
// double brackets, double braces, or a JSON object opener.
func openingStructure(seed string) string {
	trimmed := strings.TrimSpace(seed)
	switch {
	case strings.HasPrefix(trimmed, "[["):
		return "\\[\\[\\s{0,10}\\{"
	case strings.HasPrefix(trimmed, "{{"):
		return "\\{\\{\\s{0,10}[A-Za-z\"'`‘’“”]"
	case strings.HasPrefix(trimmed, "{"):
		return "\\{\\s{0,10}" + quoteClass + "[A-Za-z0-9_-]{1,40}" + quoteClass + "\\s{0,10}:"
	}
	return ""
}

// extractFieldNames pulls JSON-ish field names from the seed, preserving
// first-seen order.
func extractFieldNames(seed string) []string {
	var fields []string
	seen := make(map[string]bool)
	for _, m := range jsonFieldRe.FindAllStringSubmatch(seed, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			fields = append(fields, m[1])
		}
	}
	return fields
}

// structureWithFields rebuilds the seed's structure with literal field names
// and wildcarded values, bounded between fields so the whole pattern stays
// linear.
func structureWithFields(seed string, fields []string) string {
	var b strings.Builder
	trimmed := strings.TrimSpace(seed)

	if strings.HasPrefix(trimmed, "[[") {
		b.WriteString("\\[\\[\\s{0,10}")
	}
	if strings.Contains(trimmed, "{") {
		b.WriteString("\\{\\s{0,10}")
	}
	for i, field := range fields {
		if i > 0 {
			b.WriteString("[\\s\\S]{0,200}?")
		}
		b.WriteString(quoteClass)
		b.WriteString(regexp.QuoteMeta(field))
		b.WriteString(quoteClass)
		b.WriteString("\\s{0,10}:\\s{0,10}")
		b.WriteString(quoteClass)
		b.WriteString(valueClass)
		b.WriteString(quoteClass)
	}
	if strings.Contains(trimmed, "}") {
		b.WriteString("\\s{0,10}\\}")
	}
	if strings.HasSuffix(trimmed, "]]") {
		b.WriteString("\\s{0,10}\\]\\]")
	}
	return b.String()
}

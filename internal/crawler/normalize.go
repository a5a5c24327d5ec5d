package crawler

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Normalize canonicalises a URL for deduplication and storage: fragment
// stripped, host lowercased, default port removed, duplicate slashes
// collapsed, query parameters sorted, tracking parameters dropped.
// Normalize(Normalize(u)) == Normalize(u).
func Normalize(rawURL string, trackingParams []string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Remove default ports
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	u.Path = collapseSlashes(u.Path)
	if u.Path == "" {
		u.Path = "/"
	}

	u.RawQuery = normalizeQuery(u.Query(), trackingParams)

	return u.String(), nil
}

// collapseSlashes reduces every run of consecutive slashes in a path to one.
func collapseSlashes(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	prevSlash := false
	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeQuery drops deny-listed tracking parameters and re-encodes the
// remainder with keys (and values per key) in sorted order.
func normalizeQuery(values url.Values, trackingParams []string) string {
	for _, p := range trackingParams {
		values.Del(p)
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
	}
	return b.String()
}

// SameSite reports whether candidate belongs to the crawl scope rooted at
// rootHost: the exact host always, subdomains only when includeSubdomains is
// set. Hosts are expected lowercased (Normalize does that).
func SameSite(rootHost, candidateHost string, includeSubdomains bool) bool {
	rootHost = stripPort(rootHost)
	candidateHost = stripPort(candidateHost)
	if candidateHost == rootHost {
		return true
	}
	if !includeSubdomains {
		return false
	}
	// Treat www.<root> and <root> as the same site in either direction.
	if strings.TrimPrefix(candidateHost, "www.") == strings.TrimPrefix(rootHost, "www.") {
		return true
	}
	return strings.HasSuffix(candidateHost, "."+strings.TrimPrefix(rootHost, "www."))
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i > -1 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

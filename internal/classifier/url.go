package classifier

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

// CategoryCodeLength is the number of digits in a site category identifier
const CategoryCodeLength = 13

var digitRun = regexp.MustCompile(`\d+`)

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"gclsrc":       {},
	"msclkid":      {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var (
	ErrEmptyHref         = errors.New("empty href")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// ExtractCategoryCodes returns every run of exactly 13 digits in the URL path, in order
func ExtractCategoryCodes(rawURL string) []string {
	var codes []string
	for _, run := range digitRun.FindAllString(urlPath(rawURL), -1) {
		if len(run) == CategoryCodeLength {
			codes = append(codes, run)
		}
	}
	return codes
}

// Canonicalize resolves href against base and normalises the result: lowercase
// scheme and host, no default port, no fragment, no tracking parameters,
// sorted query and no trailing slash except for the root path.
func Canonicalize(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", ErrEmptyHref
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}

	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("href %q has no host", href)
	}

	u.Scheme = scheme
	u.Host = normalizeHost(u)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.RawQuery = cleanQuery(u.Query())
	u.ForceQuery = false
	u.Path = normalizePath(u.Path)
	u.RawPath = ""

	return u.String(), nil
}

func normalizeHost(u *url.URL) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || defaultPorts[u.Scheme] == port {
		return hostname
	}
	return hostname + ":" + port
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if _, tracking := trackingParams[strings.ToLower(key)]; !tracking {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, val := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}

func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimRight(path.Clean(p), "/")
}

// PathMatches reports whether pattern occurs in p. Patterns ending in "/" match
// anywhere; other patterns must end at a segment boundary.
func PathMatches(p, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "/") {
		return strings.Contains(p, pattern)
	}

	for offset := 0; ; {
		idx := strings.Index(p[offset:], pattern)
		if idx < 0 {
			return false
		}
		end := offset + idx + len(pattern)
		if end == len(p) || p[end] == '/' || p[end] == '?' {
			return true
		}
		offset = offset + idx + 1
	}
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}

func pathSegments(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

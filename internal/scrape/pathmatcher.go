package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip media galleries, which carry no article body.
var defaultExcludePatterns = []string{
	"/videos/*",
	"/**/photostory/*",
	"/web-stories/*",
}

// PathMatcher filters URLs based on glob-style path patterns.
// Uses path.Match from stdlib for proper glob matching, plus a segmented
// match so "/videos/*" matches multi-level paths like "/videos/sports/clip.cms".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/videos/*", "/*.pdf").
// Falls back to default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any exclude pattern.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return m.isPathExcluded(u.Path)
}

// isPathExcluded checks a URL path against all patterns.
func (m *PathMatcher) isPathExcluded(urlPath string) bool {
	urlPath = strings.ToLower(urlPath)
	for _, pattern := range m.patterns {
		pattern = strings.ToLower(pattern)
		if matchSegmented(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented reports whether urlPath matches pattern, treating a trailing
// "/*" as "anything below this directory" and a leading "/**" as "at any
// depth".
func matchSegmented(pattern, urlPath string) bool {
	if rest, ok := strings.CutPrefix(pattern, "/**"); ok {
		for i := 0; i < len(urlPath); i++ {
			if urlPath[i] == '/' && matchSegmented(rest, urlPath[i:]) {
				return true
			}
		}
		return false
	}

	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}

	return false
}

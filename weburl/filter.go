package weburl

import (
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathFilter decides whether a URL path belongs to one of the configured
// page types. Plain filters ("products", "/solutions/") match as path
// prefixes; filters containing glob metacharacters are matched with
// doublestar patterns against the full path.
type PathFilter struct {
	prefixes []string
	globs    []string
}

// NewPathFilter compiles page-type filters. An empty filter list matches
// every path.
func NewPathFilter(filters []string) *PathFilter {
	f := &PathFilter{}
	for _, raw := range filters {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		if containsGlob(pattern) {
			if !strings.HasPrefix(pattern, "/") {
				pattern = "/" + pattern
			}
			f.globs = append(f.globs, pattern)
			continue
		}
		prefix := "/" + strings.Trim(pattern, "/")
		f.prefixes = append(f.prefixes, prefix)
	}
	return f
}

// Matches reports whether the URL's path belongs to a configured page type.
func (f *PathFilter) Matches(rawURL string) bool {
	if len(f.prefixes) == 0 && len(f.globs) == 0 {
		return true
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}

	for _, prefix := range f.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	for _, pattern := range f.globs {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// PageType returns the first configured page type the URL falls under,
// used as chunk metadata. Returns "" when nothing matches.
func (f *PathFilter) PageType(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := parsed.Path

	for _, prefix := range f.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return strings.Trim(prefix, "/")
		}
	}
	for _, pattern := range f.globs {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return strings.Trim(strings.SplitN(strings.Trim(pattern, "/"), "/", 2)[0], "*")
		}
	}
	return ""
}

// containsGlob checks if a pattern contains glob metacharacters.
func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

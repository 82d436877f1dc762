package model

import (
	"strings"

	"golang.org/x/text/cases"
)

var keyFolder = cases.Fold()

// NameKey normalizes a company name into a caseless match key: folded,
// whitespace-collapsed, with punctuation commonly varying between data
// sources stripped.
func NameKey(name string) string {
	s := keyFolder.String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case r == '.' || r == ',' || r == '\'' || r == '"':
			continue
		case r == ' ' || r == '\t' || r == '\n':
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// LinkedInKey normalizes a LinkedIn company URL into its canonical match
// key `linkedin.com/company/<slug>`: lowercased, scheme and www stripped,
// and sub-paths, query strings and fragments dropped. Returns "" for inputs
// that do not look like a LinkedIn company URL.
func LinkedInKey(rawURL string) string {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")

	const marker = "linkedin.com/company/"
	i := strings.Index(s, marker)
	if i != 0 {
		return ""
	}
	slug := s[len(marker):]
	if j := strings.IndexAny(slug, "/?#"); j >= 0 {
		slug = slug[:j]
	}
	if slug == "" {
		return ""
	}
	return marker + slug
}

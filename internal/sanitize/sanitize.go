// Package sanitize strips markup from user-supplied event text before it is stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows safe user-generated formatting (<p>, <b>, <a>, lists, ...).
	UGCPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML and returns trimmed plain text. Entities produced by the policy are
// decoded again so "Rock & Roll" is stored as typed.
func Text(input string) string {
	return strings.TrimSpace(html.UnescapeString(StrictPolicy.Sanitize(input)))
}

// HTML keeps safe formatting tags and removes scripts, frames, handlers and style attributes.
// Used for event descriptions.
func HTML(input string) string {
	return strings.TrimSpace(UGCPolicy.Sanitize(input))
}

// Tags sanitizes each tag, drops empty results and removes case-insensitive duplicates,
// keeping the first spelling.
func Tags(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	out := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, input := range inputs {
		tag := Text(input)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

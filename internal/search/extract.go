package search

import (
	"regexp"
	"sort"
	"strings"

	"nexcrm/builder/internal/page"
	"nexcrm/builder/internal/schema"
)

// textKeys are the prop and content keys that hold visible copy.
var textKeys = map[string]bool{
	"text": true, "label": true, "alt": true, "html": true,
	"heading": true, "subtitle": true, "ctaLabel": true,
	"title": true, "body": true, "quote": true, "author": true,
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// TextOf collects the visible copy of a document in reading order, for
// indexing. Markup in HtmlBlock nodes is stripped.
func TextOf(root *page.Node) string {
	var parts []string
	page.Walk(root, func(n, _ *page.Node, _ int) bool {
		parts = appendText(parts, n.Type(), n.Props())
		parts = appendText(parts, n.Type(), n.Content())
		return true
	})
	return strings.Join(parts, " ")
}

func appendText(parts []string, nodeType string, values page.Props) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if textKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		s, ok := values[key].(string)
		if !ok {
			continue
		}
		if nodeType == schema.TypeHTMLBlock && key == "html" {
			s = tagPattern.ReplaceAllString(s, " ")
		}
		s = strings.Join(strings.Fields(s), " ")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

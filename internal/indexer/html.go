package indexer

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var stripPolicy = bluemonday.StrictPolicy()

// HTMLToText extracts readable text from an HTML body: script, style and
// head content are dropped, everything else is the concatenation of text
// nodes with collapsed whitespace. Malformed markup degrades to tag
// stripping rather than failing.
func HTMLToText(source string) string {
	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return StripTags(source)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(strings.Fields(b.String()), " ")
}

// StripTags removes all markup from a fragment, for short display fields
// like snippets.
func StripTags(source string) string {
	stripped := stripPolicy.Sanitize(source)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"fbscrape/internal/selectors"
)

var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "footer": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "ol": true, "p": true, "section": true, "table": true, "tr": true,
	"ul": true,
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// VisibleText approximates innerText: block elements break lines, each line
// is whitespace-collapsed and blank lines are dropped.
func VisibleText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		walkText(n, &b)
		b.WriteByte('\n')
	}
	return joinLines(b.String())
}

// Lines is VisibleText split into its lines.
func Lines(s *goquery.Selection) []string {
	t := VisibleText(s)
	if t == "" {
		return nil
	}
	return strings.Split(t, "\n")
}

func walkText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipTags[n.Data] {
			return
		}
	}
	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}
	if block {
		b.WriteByte('\n')
	}
}

func joinLines(raw string) string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = selectors.Squash(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// contains reports whether b is a or a descendant of a.
func contains(a, b *html.Node) bool {
	for n := b; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}

// outermost drops every node that has another node of the selection as an
// ancestor.
func outermost(s *goquery.Selection) *goquery.Selection {
	set := make(map[*html.Node]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		set[n] = true
	}
	return s.FilterFunction(func(_ int, el *goquery.Selection) bool {
		for p := el.Nodes[0].Parent; p != nil; p = p.Parent {
			if set[p] {
				return false
			}
		}
		return true
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func appendUnique(list []string, seen map[string]bool, v string) []string {
	if v == "" || seen[v] {
		return list
	}
	seen[v] = true
	return append(list, v)
}

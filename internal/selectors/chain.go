package selectors

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Chain is an ordered list of CSS selectors tried in sequence until one
// yields a usable result. goquery treats a selector that fails to compile
// as matching nothing, so a bad entry only costs one attempt.
type Chain []string

// First returns the matches of the first selector that matches anything,
// or an empty selection.
func (c Chain) First(root *goquery.Selection) *goquery.Selection {
	for _, sel := range c {
		if found := root.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return root.Slice(0, 0)
}

// FirstWhere is First with a per-element predicate. The first selector
// with at least one element passing keep wins, and only the passing
// elements are returned.
func (c Chain) FirstWhere(root *goquery.Selection, keep func(*goquery.Selection) bool) (*goquery.Selection, string) {
	for _, sel := range c {
		found := root.Find(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return keep(s)
		})
		if found.Length() > 0 {
			return found, sel
		}
	}
	return root.Slice(0, 0), ""
}

// Value walks every element of every selector in order and returns the
// first non-empty result of get.
func (c Chain) Value(root *goquery.Selection, get func(*goquery.Selection) string) string {
	for _, sel := range c {
		var out string
		root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = strings.TrimSpace(get(s))
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

// Text returns the first non-empty whitespace-normalized text.
func (c Chain) Text(root *goquery.Selection) string {
	return c.Value(root, func(s *goquery.Selection) string {
		return Squash(s.Text())
	})
}

// TextWhere returns the first whitespace-normalized text accepted by keep.
func (c Chain) TextWhere(root *goquery.Selection, keep func(string) bool) string {
	return c.Value(root, func(s *goquery.Selection) string {
		if t := Squash(s.Text()); keep(t) {
			return t
		}
		return ""
	})
}

// Attr returns the first non-empty value of the named attribute.
func (c Chain) Attr(root *goquery.Selection, name string) string {
	return c.Value(root, func(s *goquery.Selection) string {
		return s.AttrOr(name, "")
	})
}

func (c Chain) Exists(root *goquery.Selection) bool {
	return c.First(root).Length() > 0
}

// CSS joins the chain into one selector group for document.querySelectorAll.
func (c Chain) CSS() string {
	return strings.Join(c, ", ")
}

// Prepend returns a new chain with extra selectors in front, skipping
// duplicates and empty entries.
func (c Chain) Prepend(extra ...string) Chain {
	out := make(Chain, 0, len(extra)+len(c))
	seen := make(map[string]bool, len(extra)+len(c))
	for _, s := range append(append([]string{}, extra...), c...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Squash collapses runs of whitespace into single spaces.
func Squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

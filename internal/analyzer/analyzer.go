// Package analyzer inspects a page snapshot and guesses selectors for the
// feed, its comment buttons and the comment dialog. Facebook rotates its
// class names often, so selectors found on the live page are tried before
// the static chains.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"fbscrape/internal/selectors"
)

// maxPerKind caps how many discovered selectors of one kind are kept.
const maxPerKind = 5

var (
	commentWords = []string{"comment", "коммент"}
	replyWords   = []string{"repl", "ответ"}
	seeMoreWords = []string{"see more", "view more", "показать еще", "ещё"}

	// class names that are safe to use unescaped in a CSS selector
	classRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

var (
	defaultPosts          = []string{`div[role="article"]`}
	defaultCommentButtons = []string{`div[role="button"]`, `span[role="button"]`}
	defaultComments       = []string{`ul[role="list"] li[role="article"]`, `div[role="article"][tabindex="0"]`}
	defaultReplies        = []string{`div[role="button"]`, `span[role="button"]`}
	defaultModals         = []string{`div[role="dialog"]`, `div[aria-modal="true"]`}
	defaultSeeMore        = []string{`div[role="button"]`}
)

// FeedSelectors is what AnalyzeFeed found. Fallback names the fields that
// hold defaults because nothing matched.
type FeedSelectors struct {
	Posts          []string `json:"post_selectors"`
	CommentButtons []string `json:"comment_button_selectors"`
	Comments       []string `json:"comment_selectors"`
	Replies        []string `json:"reply_selectors"`
	Fallback       []string `json:"fallback,omitempty"`
}

// ModalSelectors is what AnalyzeModal found in an open comment dialog.
type ModalSelectors struct {
	Container []string `json:"modal_container_selector"`
	Comments  []string `json:"modal_comment_selectors"`
	Replies   []string `json:"modal_reply_selectors"`
	SeeMore   []string `json:"modal_see_more_selectors"`
	Fallback  []string `json:"fallback,omitempty"`
}

type Analyzer struct {
	logger logrus.FieldLogger
}

func New(logger logrus.FieldLogger) *Analyzer {
	return &Analyzer{logger: logger}
}

// AnalyzeFeed looks for the container holding the most articles, the
// comment buttons, comment lists and reply buttons of a feed page.
func (a *Analyzer) AnalyzeFeed(doc *goquery.Document) FeedSelectors {
	root := doc.Selection
	var fs FeedSelectors

	fs.Posts = postSelectors(root)
	fs.CommentButtons = buttonSelectors(root.Find(`span, div[role="button"], a`), commentWords)
	fs.Comments = commentSelectors(root)
	fs.Replies = buttonSelectors(root.Find(`span, div[role="button"]`), replyWords)

	fs.Posts, fs.Fallback = orDefault(fs.Posts, defaultPosts, "posts", fs.Fallback)
	fs.CommentButtons, fs.Fallback = orDefault(fs.CommentButtons, defaultCommentButtons, "comment_buttons", fs.Fallback)
	fs.Comments, fs.Fallback = orDefault(fs.Comments, defaultComments, "comments", fs.Fallback)
	fs.Replies, fs.Fallback = orDefault(fs.Replies, defaultReplies, "replies", fs.Fallback)

	a.logger.Debugf("Feed analysis: %d post, %d comment button, %d comment, %d reply selectors (defaults for %v)",
		len(fs.Posts), len(fs.CommentButtons), len(fs.Comments), len(fs.Replies), fs.Fallback)
	return fs
}

// AnalyzeModal inspects an open comment dialog.
func (a *Analyzer) AnalyzeModal(doc *goquery.Document) ModalSelectors {
	var ms ModalSelectors

	var modal *goquery.Selection
	for _, sel := range defaultModals {
		if found := doc.Find(sel); found.Length() > 0 {
			modal = found.Last()
			ms.Container = []string{sel}
			break
		}
	}
	if modal == nil {
		a.logger.Debug("No open dialog found, using default modal selectors")
		return ModalSelectors{
			Container: defaultModals,
			Comments:  defaultComments,
			Replies:   defaultReplies,
			SeeMore:   defaultSeeMore,
			Fallback:  []string{"container", "comments", "replies", "see_more"},
		}
	}

	ms.Comments = commentSelectors(modal)
	ms.Replies = buttonSelectors(modal.Find(`span, div[role="button"]`), replyWords)
	ms.SeeMore = buttonSelectors(modal.Find(`div[role="button"], span`), seeMoreWords)

	ms.Comments, ms.Fallback = orDefault(ms.Comments, defaultComments, "comments", ms.Fallback)
	ms.Replies, ms.Fallback = orDefault(ms.Replies, defaultReplies, "replies", ms.Fallback)
	ms.SeeMore, ms.Fallback = orDefault(ms.SeeMore, defaultSeeMore, "see_more", ms.Fallback)

	a.logger.Debugf("Modal analysis: container %v, %d comment, %d reply, %d see more selectors",
		ms.Container, len(ms.Comments), len(ms.Replies), len(ms.SeeMore))
	return ms
}

// ToProfile returns the discovered selectors, leaving out defaults so they
// do not shadow the static chains.
func (fs FeedSelectors) ToProfile() selectors.Discovered {
	skip := set(fs.Fallback)
	var d selectors.Discovered
	if !skip["posts"] {
		d.Posts = fs.Posts
	}
	if !skip["comment_buttons"] {
		d.CommentButton = fs.CommentButtons
	}
	if !skip["comments"] {
		d.Comments = fs.Comments
	}
	if !skip["replies"] {
		d.Replies = fs.Replies
	}
	return d
}

func (ms ModalSelectors) ToProfile() selectors.Discovered {
	skip := set(ms.Fallback)
	var d selectors.Discovered
	if !skip["container"] {
		d.Modal = ms.Container
	}
	if !skip["comments"] {
		d.Comments = ms.Comments
	}
	if !skip["replies"] {
		d.Replies = ms.Replies
	}
	if !skip["see_more"] {
		d.LoadMore = ms.SeeMore
	}
	return d
}

// postSelectors picks the container with the most articles inside.
func postSelectors(root *goquery.Selection) []string {
	var (
		best  string
		count int
	)
	root.Find(`div[role="main"], div[data-pagelet]`).Each(func(_ int, c *goquery.Selection) {
		n := c.Find(`div[role="article"]`).Length()
		if n <= count {
			return
		}
		count = n
		switch {
		case classSelector("div", c) != "div":
			best = classSelector("div", c) + ` div[role="article"]`
		case c.AttrOr("data-pagelet", "") != "":
			best = `div[data-pagelet="` + c.AttrOr("data-pagelet", "") + `"] div[role="article"]`
		default:
			best = `div[role="main"] div[role="article"]`
		}
	})
	if best == "" {
		return nil
	}
	return []string{best}
}

// commentSelectors finds lists whose items are articles.
func commentSelectors(root *goquery.Selection) []string {
	var out []string
	seen := map[string]bool{}
	root.Find(`ul[role="list"]`).Each(func(_ int, ul *goquery.Selection) {
		if ul.Find(`li[role="article"]`).Length() > 0 {
			out = appendNew(out, seen, classSelector(`ul[role="list"]`, ul)+` li[role="article"]`)
		}
		if ul.ChildrenFiltered("li").Find(`div[role="article"]`).Length() > 0 {
			out = appendNew(out, seen, classSelector(`ul[role="list"]`, ul)+` > li div[role="article"]`)
		}
	})
	return limit(out)
}

// buttonSelectors returns tag.class selectors of the elements whose own
// text or aria-label contains one of words. The words themselves are
// matched at click time.
func buttonSelectors(candidates *goquery.Selection, words []string) []string {
	var out []string
	seen := map[string]bool{}
	candidates.Each(func(_ int, el *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(el.Text()) + " " + el.AttrOr("aria-label", ""))
		if !containsAny(label, words) {
			return
		}
		tag := goquery.NodeName(el)
		if role, ok := el.Attr("role"); ok && role == "button" {
			tag += `[role="button"]`
		}
		sel := classSelector(tag, el)
		if sel == tag {
			return
		}
		out = appendNew(out, seen, sel)
	})
	return limit(out)
}

// classSelector returns tag followed by the element's usable class names.
func classSelector(tag string, el *goquery.Selection) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, c := range strings.Fields(el.AttrOr("class", "")) {
		if classRe.MatchString(c) {
			b.WriteString(".")
			b.WriteString(c)
		}
	}
	return b.String()
}

func orDefault(found, defaults []string, name string, fallback []string) ([]string, []string) {
	if len(found) > 0 {
		return found, fallback
	}
	return defaults, append(fallback, name)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func appendNew(list []string, seen map[string]bool, v string) []string {
	if seen[v] {
		return list
	}
	seen[v] = true
	return append(list, v)
}

func limit(list []string) []string {
	if len(list) > maxPerKind {
		return list[:maxPerKind]
	}
	return list
}

func set(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, v := range list {
		m[v] = true
	}
	return m
}

package extract

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"fbscrape/internal/selectors"
	"fbscrape/pkg/types"
)

var (
	metaWords = map[string]bool{
		"like": true, "reply": true, "share": true, "edited": true, "hide": true,
		"see translation": true, "author": true, "top fan": true, "follow": true,
		"pinned": true, "most relevant": true, "all comments": true, "newest": true,
		"write a reply…": true, "write a reply...": true, "write a comment…": true,
		"write a comment...": true, "нравится": true, "ответить": true,
	}
	metaTimeRe = regexp.MustCompile(`^(?:\d+\s*(?:s|m|h|d|w|y|mo|mins?|hrs?|wks?|yrs?|сек|мин|ч|дн|нед|мес|г)|just now|yesterday|\d+\s+\p{L}+\s+ago)$`)
	repliesRe  = regexp.MustCompile(`(?i)(\d[\d.,]*\s*[km]?)\s*(?:repl|ответ)`)
)

// ParseComments extracts the comments shown in root. When a modal dialog is
// open only the dialog is searched. Each comment selector is tried in turn
// and the first one producing at least one valid comment wins.
func (p *Parser) ParseComments(root *goquery.Selection, now time.Time) []types.Comment {
	scope := root
	if modal := p.profile.Modal.First(root); modal.Length() > 0 {
		scope = modal.Last()
	}

	for _, sel := range p.profile.Comments {
		found := scope.Find(sel)
		if found.Length() == 0 {
			continue
		}
		top := topLevel(found)
		var out []types.Comment
		seen := make(map[string]bool)
		top.Each(func(_ int, el *goquery.Selection) {
			c, ok := p.parseComment(el, now, true)
			if !ok || seen[c.ID] {
				return
			}
			seen[c.ID] = true
			out = append(out, c)
		})
		if len(out) > 0 {
			p.logger.Debugf("Found %d comments with selector: %s", len(out), sel)
			return out
		}
	}
	return nil
}

// topLevel keeps the comment elements that are not replies: elements
// nested in another match, labelled as a reply, or sitting in a list item
// whose first match is a different comment.
func topLevel(found *goquery.Selection) *goquery.Selection {
	found = outermost(found)
	nodes := found.Nodes
	return found.FilterFunction(func(_ int, el *goquery.Selection) bool {
		if strings.HasPrefix(strings.ToLower(el.AttrOr("aria-label", "")), "reply") {
			return false
		}
		self := el.Nodes[0]
		for a := self.Parent; a != nil; a = a.Parent {
			if a.Type != html.ElementNode || a.Data != "li" {
				continue
			}
			for _, n := range nodes {
				if contains(a, n) {
					if n != self && !contains(n, self) {
						return false
					}
					break
				}
			}
		}
		return true
	})
}

func (p *Parser) parseComment(el *goquery.Selection, now time.Time, withReplies bool) (types.Comment, bool) {
	own := el
	if withReplies {
		own = el.Clone()
		p.profile.Replies.First(own).Remove()
	}

	c := types.Comment{ScrapedAt: now}
	c.Author = p.commentAuthor(own)
	c.Text = p.commentText(own, c.Author.Name)
	if c.Text == "" || c.Text == c.Author.Name {
		return c, false
	}
	c.PostedTime = p.commentTime(own)
	c.Likes = ParseCount(p.profile.CommentLikes.Value(own, labelOrText))
	c.IsPinned = flagged(own, p.profile.Pinned)
	c.IsEdited = flagged(own, p.profile.Edited)
	c.Reactions = p.reactions(own, p.profile.CommentReaction)
	c.ID = commentID(own, c)

	if withReplies {
		c.RepliesCount = repliesCount(p.profile.CommentReplyBtn.TextWhere(el, func(t string) bool {
			return repliesCount(t) > 0
		}))
		c.Replies = p.replies(el, now)
		if len(c.Replies) > c.RepliesCount {
			c.RepliesCount = len(c.Replies)
		}
	}
	return c, true
}

// replies looks for reply elements inside the comment and, when the
// comment is the head of a list item, inside that list item.
func (p *Parser) replies(el *goquery.Selection, now time.Time) []types.Comment {
	scope := el
	if li := el.Closest("li"); li.Length() > 0 {
		if first := p.profile.Comments.First(li).First(); first.Length() > 0 && first.Nodes[0] == el.Nodes[0] {
			scope = li
		}
	}
	self := el.Nodes[0]

	for _, sel := range p.profile.Replies {
		found := scope.Find(sel).FilterFunction(func(_ int, r *goquery.Selection) bool {
			n := r.Nodes[0]
			return n != self && !contains(n, self)
		})
		if found.Length() == 0 {
			continue
		}
		var out []types.Comment
		seen := make(map[string]bool)
		outermost(found).EachWithBreak(func(_ int, r *goquery.Selection) bool {
			c, ok := p.parseComment(r, now, false)
			if ok && !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
			return len(out) < p.maxReplies
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (p *Parser) commentAuthor(el *goquery.Selection) types.Author {
	var a types.Author
	p.profile.CommentAuthor.Value(el, func(s *goquery.Selection) string {
		name := selectors.Squash(s.Text())
		if !validName(name) || metaTimeRe.MatchString(strings.ToLower(name)) {
			return ""
		}
		a.Name = name
		a.URL = ProfileURL(linkOf(s).AttrOr("href", ""))
		return name
	})
	return a
}

func (p *Parser) commentText(el *goquery.Selection, author string) string {
	keep := func(t string) bool {
		return t != "" && t != author && !isMetaLine(t)
	}
	if t := p.profile.CommentText.TextWhere(el, keep); t != "" {
		return t
	}

	var text string
	el.Find(`div[dir="auto"], span[dir="auto"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Closest("h3, strong, a").Length() > 0 || s.Find(`[dir="auto"]`).Length() > 0 {
			return true
		}
		if t := VisibleText(s); len([]rune(t)) > 3 && keep(t) {
			text = t
			return false
		}
		return true
	})
	if text != "" {
		return text
	}

	var lines []string
	for _, line := range Lines(el) {
		if line == author || isMetaLine(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (p *Parser) commentTime(el *goquery.Selection) string {
	return p.profile.CommentTime.Value(el, func(s *goquery.Selection) string {
		for _, v := range timeCandidates(s) {
			if LooksLikeTime(v) {
				return v
			}
		}
		return ""
	})
}

// isMetaLine matches the action and timestamp lines rendered around a
// comment body.
func isMetaLine(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	if l == "" || metaWords[l] {
		return true
	}
	if metaTimeRe.MatchString(l) {
		return true
	}
	return strings.Trim(l, "0123456789 ·.,") == ""
}

func flagged(el *goquery.Selection, chain selectors.Chain) bool {
	found, _ := chain.FirstWhere(el, func(s *goquery.Selection) bool {
		return s.AttrOr("aria-label", "") != "" || len([]rune(selectors.Squash(s.Text()))) <= 30
	})
	return found.Length() > 0
}

func repliesCount(text string) int {
	if m := repliesRe.FindStringSubmatch(text); len(m) == 2 {
		return ParseCount(m[1])
	}
	return 0
}

func commentID(el *goquery.Selection, c types.Comment) string {
	var id string
	el.Find(`a[href*="comment_id"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		u, err := url.Parse(a.AttrOr("href", ""))
		if err != nil {
			return true
		}
		q := u.Query()
		id = q.Get("reply_comment_id")
		if id == "" {
			id = q.Get("comment_id")
		}
		return id == ""
	})
	if id != "" {
		return "c_" + id
	}
	return StableID("c_", c.Author.Name, c.Text)
}

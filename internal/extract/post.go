package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"fbscrape/internal/selectors"
	"fbscrape/pkg/types"
)

// IndexAttr is set on post elements in the live page so a fragment parsed
// from a snapshot can be found again by the browser.
const IndexAttr = "data-fbs-idx"

const defaultMinPostText = 100

var notNames = map[string]bool{
	"follow": true, "see more": true, "like": true, "reply": true, "share": true,
	"comment": true, "join": true, "join group": true, "author": true, "top fan": true,
}

// Parser extracts posts and comments from HTML snapshots. It holds no
// mutable state and never modifies the documents it reads, so one Parser
// may be shared by concurrent workers.
type Parser struct {
	profile     selectors.Profile
	logger      logrus.FieldLogger
	minPostText int
	maxReplies  int
}

type Option func(*Parser)

// WithMinPostText sets how much text a candidate needs to count as a post.
func WithMinPostText(n int) Option {
	return func(p *Parser) { p.minPostText = n }
}

func WithMaxReplies(n int) Option {
	return func(p *Parser) { p.maxReplies = n }
}

func NewParser(profile selectors.Profile, logger logrus.FieldLogger, opts ...Option) *Parser {
	p := &Parser{
		profile:     profile,
		logger:      logger,
		minPostText: defaultMinPostText,
		maxReplies:  5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) Profile() selectors.Profile {
	return p.profile
}

// Fragment is one post element of a snapshot.
type Fragment struct {
	Index string
	Sel   *goquery.Selection
}

// Fragments returns the post elements of doc. The first post selector with
// at least one element holding enough text and an author link wins; nested
// candidates collapse to the outermost one.
func (p *Parser) Fragments(doc *goquery.Document) []Fragment {
	found, sel := p.profile.Posts.FirstWhere(doc.Selection, p.looksLikePost)
	if found.Length() == 0 {
		p.logger.Debug("No post elements matched any selector")
		return nil
	}
	found = outermost(found)
	p.logger.Debugf("Found %d posts with selector: %s", found.Length(), sel)

	frags := make([]Fragment, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		frags = append(frags, Fragment{Index: s.AttrOr(IndexAttr, ""), Sel: s})
	})
	return frags
}

func (p *Parser) looksLikePost(s *goquery.Selection) bool {
	if len([]rune(VisibleText(s))) <= p.minPostText {
		return false
	}
	return s.Find("h2 a, h3 a, strong a").Length() > 0 || p.profile.PostAuthor.Exists(s)
}

// ParsePost builds a post from one fragment. Missing fields keep their zero
// value.
func (p *Parser) ParsePost(s *goquery.Selection, now time.Time) types.Post {
	post := types.Post{
		ScrapedAt: now,
		Comments:  []types.Comment{},
	}
	post.Author = p.postAuthor(s)
	post.Content = p.postContent(s, post.Author.Name)
	post.PostURL = p.postURL(s)
	post.ID = p.postID(s, post)
	post.PostedTime, post.PostedAt = p.postedTime(s, now)
	post.Engagement = p.engagement(s)
	post.Reactions = p.reactions(s, p.profile.Reactions)
	post.Images = p.images(s, post.Author.AvatarURL)
	post.ExternalLinks = externalLinks(s)
	post.Hashtags = Hashtags(post.Content)
	post.PostType = p.postType(s, post)
	return post
}

// ParsePage parses a permalink page: the first post fragment if any, else
// the whole page as the post body.
func (p *Parser) ParsePage(doc *goquery.Document, pageURL string, now time.Time) types.Post {
	root := doc.Selection
	if frags := p.Fragments(doc); len(frags) > 0 {
		root = frags[0].Sel
	}
	post := p.ParsePost(root, now)
	if post.PostURL == "" || !IsPostURL(post.PostURL) {
		post.PostURL = NormalizeURL(pageURL)
	}
	if id := PostIDFromURL(post.PostURL); id != "" {
		post.ID = id
	}
	return post
}

func (p *Parser) postAuthor(s *goquery.Selection) types.Author {
	var a types.Author
	p.profile.PostAuthor.Value(s, func(el *goquery.Selection) string {
		name := selectors.Squash(el.Text())
		if !validName(name) {
			return ""
		}
		a.Name = name
		a.URL = ProfileURL(linkOf(el).AttrOr("href", ""))
		return name
	})
	a.AvatarURL = p.profile.AuthorAvatar.Value(s, func(el *goquery.Selection) string {
		for _, attr := range []string{"xlink:href", "href", "src"} {
			if v := el.AttrOr(attr, ""); IsImageURL(v) {
				return v
			}
		}
		return ""
	})
	a.IsVerified = p.profile.Verified.Exists(s)
	return a
}

func (p *Parser) postContent(s *goquery.Selection, author string) string {
	content := p.profile.PostContent.Value(s, VisibleText)
	if content == "" {
		content = fragmentsText(s, author)
	}
	return trimSeeMore(content, p.profile.SeeMoreWords)
}

// fragmentsText joins the innermost dir=auto texts longer than ten
// characters, skipping the author name.
func fragmentsText(s *goquery.Selection, author string) string {
	var parts []string
	seen := make(map[string]bool)
	s.Find(`div[dir="auto"], span[dir="auto"]`).Each(func(_ int, el *goquery.Selection) {
		if el.Find(`[dir="auto"]`).Length() > 0 || el.Closest("h2, h3, strong, a").Length() > 0 {
			return
		}
		t := selectors.Squash(el.Text())
		if len([]rune(t)) <= 10 || t == author {
			return
		}
		parts = appendUnique(parts, seen, t)
	})
	return strings.Join(parts, "\n")
}

func trimSeeMore(content string, words []string) string {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)
	for _, w := range words {
		if strings.HasSuffix(lower, w) {
			trimmed = strings.TrimSpace(trimmed[:len(trimmed)-len(w)])
			trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, "…"), "...")
			trimmed = strings.TrimSpace(trimmed)
			break
		}
	}
	return trimmed
}

func (p *Parser) postURL(s *goquery.Selection) string {
	return p.profile.PostLink.Value(s, func(el *goquery.Selection) string {
		href := el.AttrOr("href", "")
		if !IsPostURL(href) {
			return ""
		}
		return NormalizeURL(href)
	})
}

func (p *Parser) postID(s *goquery.Selection, post types.Post) string {
	if id := PostIDFromURL(post.PostURL); id != "" {
		return id
	}
	if id := postIDFromDataFt(s); id != "" {
		return id
	}
	if id := s.AttrOr("data-story-id", ""); id != "" {
		return id
	}
	var id string
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href := a.AttrOr("href", ""); IsPostURL(href) {
			id = PostIDFromURL(href)
		}
		return id == ""
	})
	if id != "" {
		return id
	}
	body := post.Content
	if body == "" {
		body = truncate(VisibleText(s), 500)
	}
	return StableID("h", post.Author.Name, body)
}

func (p *Parser) postedTime(s *goquery.Selection, now time.Time) (string, *time.Time) {
	var at time.Time
	raw := p.profile.PostTime.Value(s, func(el *goquery.Selection) string {
		for _, v := range timeCandidates(el) {
			if t, ok := ParseTime(v, now); ok {
				at = t
				if utime, ok := el.Attr("data-utime"); ok && utime == v {
					return t.Format(time.RFC3339)
				}
				return v
			}
		}
		return ""
	})
	if raw == "" {
		return "", nil
	}
	return raw, &at
}

// timeCandidates lists the places a timestamp may hide, most precise first.
func timeCandidates(el *goquery.Selection) []string {
	var out []string
	for _, attr := range []string{"data-utime", "datetime", "title", "aria-label"} {
		if v := strings.TrimSpace(el.AttrOr(attr, "")); v != "" {
			out = append(out, v)
		}
	}
	if t := selectors.Squash(el.Text()); t != "" && len([]rune(t)) <= 60 {
		out = append(out, t)
	}
	return out
}

func (p *Parser) engagement(s *goquery.Selection) types.Engagement {
	var e types.Engagement
	likes := p.profile.Likes.Value(s, labelOrText)
	e.Likes = ParseCount(likes)

	text := VisibleText(s)
	if c := p.profile.CommentsCount.Value(s, func(el *goquery.Selection) string {
		if n := CountNear(el.Text(), "comment"); n > 0 {
			return el.Text()
		}
		return ""
	}); c != "" {
		e.Comments = CountNear(c, "comment")
	} else {
		e.Comments = CountNear(text, "comment")
	}

	if sh := p.profile.Shares.Value(s, func(el *goquery.Selection) string {
		v := labelOrText(el)
		if CountNear(v, "share") > 0 {
			return v
		}
		return ""
	}); sh != "" {
		e.Shares = CountNear(sh, "share")
	} else {
		e.Shares = CountNear(text, "share")
	}
	return e
}

func labelOrText(el *goquery.Selection) string {
	v := el.AttrOr("aria-label", "")
	if v == "" {
		v = selectors.Squash(el.Text())
	}
	if !hasDigit(v) {
		return ""
	}
	return v
}

// reactions merges the per-type counts of every aria-label matched by the
// first selector of chain that yields any.
func (p *Parser) reactions(s *goquery.Selection, chain selectors.Chain) map[string]int {
	for _, sel := range chain {
		var out map[string]int
		s.Find(sel).Each(func(_ int, el *goquery.Selection) {
			if label := el.AttrOr("aria-label", ""); label != "" {
				out = mergeReactions(out, ParseReactions(label))
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (p *Parser) images(s *goquery.Selection, avatar string) []string {
	var out []string
	seen := map[string]bool{avatar: true}
	for _, sel := range p.profile.Images {
		s.Find(sel).Each(func(_ int, img *goquery.Selection) {
			src := img.AttrOr("src", "")
			if src == "" {
				src = img.AttrOr("data-src", "")
			}
			if !IsImageURL(src) || isThumbnail(img) || img.Closest("h2, h3, strong").Length() > 0 {
				return
			}
			out = appendUnique(out, seen, CleanImageURL(src))
		})
	}
	return out
}

// isThumbnail catches avatars and reaction icons by their declared size.
func isThumbnail(img *goquery.Selection) bool {
	for _, attr := range []string{"width", "height"} {
		if n, err := strconv.Atoi(img.AttrOr(attr, "")); err == nil && n <= 60 {
			return true
		}
	}
	return false
}

func externalLinks(s *goquery.Selection) []string {
	var out []string
	seen := make(map[string]bool)
	s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := Absolute(a.AttrOr("href", ""))
		if target, ok := DecodeRedirect(href); ok {
			href = target
		}
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return
		}
		if host := hostOf(href); host == "" || IsFacebookHost(host) {
			return
		}
		out = appendUnique(out, seen, href)
	})
	return out
}

func (p *Parser) postType(s *goquery.Selection, post types.Post) string {
	switch {
	case p.profile.Video.Exists(s):
		return "video"
	case len(post.Images) > 0:
		return "photo"
	case len(post.ExternalLinks) > 0:
		return "link"
	case p.profile.Poll.Exists(s):
		return "poll"
	case p.profile.Event.Exists(s):
		return "event"
	}
	return "text"
}

func validName(name string) bool {
	if name == "" || len([]rune(name)) > 100 {
		return false
	}
	return !notNames[strings.ToLower(name)]
}

// linkOf returns el when it is an anchor, else its closest anchor.
func linkOf(el *goquery.Selection) *goquery.Selection {
	if goquery.NodeName(el) == "a" {
		return el
	}
	if a := el.Closest("a"); a.Length() > 0 {
		return a
	}
	return el.Find("a").First()
}

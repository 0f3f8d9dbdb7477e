package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/internal/selectors"
)

const feedHTML = `<html><body>
<div role="feed">
  <div aria-posinset="1" data-fbs-idx="0">
    <div>
      <h2><strong><a href="/alice.smith?__cft__=abc" role="link">Alice Smith</a></strong></h2>
      <svg aria-label="Verified account"></svg>
      <a href="https://www.facebook.com/groups/123/posts/987654321/?__cft__=x&__tn__=R" role="link"><span title="Monday, March 2, 2026 at 3:04 PM">2h</span></a>
    </div>
    <div data-ad-preview="message">
      <div dir="auto">Hello group! Check out #golang and #scraping today.</div>
      <div dir="auto">Details at the link below, lots of useful information here for everyone. See more</div>
    </div>
    <a href="https://l.facebook.com/l.php?u=https%3A%2F%2Fexample.com%2Farticle&amp;h=AT0">example.com</a>
    <img src="https://scontent.xx.fbcdn.net/v/photo1.jpg?_nc_cat=1&amp;s=600x600" width="600">
    <img src="https://scontent.xx.fbcdn.net/v/avatar.jpg" width="40" height="40">
    <span aria-label="All reactions: 1.2K">1.2K</span>
    <span>34 comments</span>
    <span>5 shares</span>
  </div>
  <div aria-posinset="2" data-fbs-idx="1">
    <h3><a href="/profile.php?id=100&amp;ref=x">Bob Jones</a></h3>
    <abbr data-utime="1767225600">January 1</abbr>
    <div><span dir="auto">A plain post without the usual message wrapper around it.</span></div>
    <div><span dir="auto">It still has enough words to look like a real post to us.</span></div>
  </div>
  <div aria-posinset="3">tiny</div>
</div>
</body></html>`

func newTestParser(profile selectors.Profile) *Parser {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewParser(profile, logger)
}

func loadDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParser_Fragments(t *testing.T) {
	p := newTestParser(selectors.Desktop())
	frags := p.Fragments(loadDoc(t, feedHTML))

	require.Len(t, frags, 2)
	assert.Equal(t, "0", frags[0].Index)
	assert.Equal(t, "1", frags[1].Index)
}

func TestParser_Fragments_NoPosts(t *testing.T) {
	p := newTestParser(selectors.Desktop())
	assert.Empty(t, p.Fragments(loadDoc(t, `<div role="feed"><div aria-posinset="1">tiny</div></div>`)))
}

func TestParser_ParsePost_Full(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := newTestParser(selectors.Desktop())
	frags := p.Fragments(loadDoc(t, feedHTML))
	require.NotEmpty(t, frags)

	post := p.ParsePost(frags[0].Sel, now)

	assert.Equal(t, "987654321", post.ID)
	assert.Equal(t, "https://www.facebook.com/groups/123/posts/987654321/", post.PostURL)
	assert.Equal(t, "Alice Smith", post.Author.Name)
	assert.Equal(t, "https://www.facebook.com/alice.smith", post.Author.URL)
	assert.True(t, post.Author.IsVerified)
	assert.Equal(t, "Hello group! Check out #golang and #scraping today.\nDetails at the link below, lots of useful information here for everyone.", post.Content)
	assert.Equal(t, "Monday, March 2, 2026 at 3:04 PM", post.PostedTime)
	require.NotNil(t, post.PostedAt)
	assert.True(t, time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC).Equal(*post.PostedAt))
	assert.Equal(t, 1200, post.Engagement.Likes)
	assert.Equal(t, 34, post.Engagement.Comments)
	assert.Equal(t, 5, post.Engagement.Shares)
	assert.Equal(t, map[string]int{"total": 1200}, post.Reactions)
	assert.Equal(t, []string{"https://scontent.xx.fbcdn.net/v/photo1.jpg?_nc_cat=1"}, post.Images)
	assert.Equal(t, []string{"https://example.com/article"}, post.ExternalLinks)
	assert.Equal(t, []string{"#golang", "#scraping"}, post.Hashtags)
	assert.Equal(t, "photo", post.PostType)
	assert.Equal(t, now, post.ScrapedAt)
	assert.NotNil(t, post.Comments)
}

func TestParser_ParsePost_Fallbacks(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := newTestParser(selectors.Desktop())
	frags := p.Fragments(loadDoc(t, feedHTML))
	require.Len(t, frags, 2)

	post := p.ParsePost(frags[1].Sel, now)

	assert.Equal(t, "Bob Jones", post.Author.Name)
	assert.Equal(t, "https://www.facebook.com/profile.php?id=100", post.Author.URL)
	assert.Equal(t, "A plain post without the usual message wrapper around it.\nIt still has enough words to look like a real post to us.", post.Content)
	assert.Equal(t, "2026-01-01T00:00:00Z", post.PostedTime)
	assert.Empty(t, post.PostURL)
	assert.True(t, strings.HasPrefix(post.ID, "h"))
	assert.Equal(t, "text", post.PostType)
	assert.Zero(t, post.Engagement)

	again := p.ParsePost(frags[1].Sel, now.Add(time.Hour))
	assert.Equal(t, post.ID, again.ID, "hash IDs must be stable across runs")
}

func TestParser_ParsePage(t *testing.T) {
	html := `<html><body><div id="screen-root">
	  <div data-ft='{"top_level_post_id":"5550001"}'>
	    <h3><a href="/carol">Carol</a></h3>
	    <div data-sigil="m-story-dom-content">Mobile story content that is certainly long enough to be accepted as a real post body, followed by a second sentence.</div>
	  </div></div></body></html>`
	p := newTestParser(selectors.Mobile())

	post := p.ParsePage(loadDoc(t, html), "https://m.facebook.com/story.php?story_fbid=5550001&id=42&ref=bookmarks", time.Now())

	assert.Equal(t, "Carol", post.Author.Name)
	assert.Equal(t, "https://m.facebook.com/story.php?id=42&story_fbid=5550001", post.PostURL)
	assert.Equal(t, "5550001", post.ID)
	assert.Contains(t, post.Content, "Mobile story content")
}

func TestURLHelpers(t *testing.T) {
	assert.Equal(t, "https://www.facebook.com/groups/1/posts/2/", NormalizeURL("/groups/1/posts/2/?__cft__=a#x"))
	assert.Equal(t, "https://example.com/a?b=c", NormalizeURL("https://l.facebook.com/l.php?u=https%3A%2F%2Fexample.com%2Fa%3Fb%3Dc&h=1"))
	assert.Equal(t, "", NormalizeURL("#"))
	assert.Equal(t, "https://www.facebook.com/jane", ProfileURL("https://www.facebook.com/jane?ref=x"))
	assert.Equal(t, "2", PostIDFromURL("https://www.facebook.com/groups/1/posts/2/"))
	assert.Equal(t, "77", PostIDFromURL("https://m.facebook.com/story.php?story_fbid=77&id=1"))
	assert.Equal(t, "1234567", PostIDFromURL("https://www.facebook.com/groups/1/1234567/"))
	assert.True(t, IsFacebookHost("m.facebook.com"))
	assert.False(t, IsFacebookHost("notfacebook.com"))
	assert.Equal(t, "https://scontent.x/a.jpg?x=1&y=2", CleanImageURL("https://scontent.x/a.jpg?x=1&s=100x100&y=2"))
	assert.Equal(t, []string{"#go", "#тест"}, Hashtags("#go and #тест and #go again"))
	assert.Equal(t, StableID("c_", "a", "b"), StableID("c_", "a", "b"))
	assert.NotEqual(t, StableID("c_", "ab", ""), StableID("c_", "a", "b"))
}

func TestVisibleText(t *testing.T) {
	doc := loadDoc(t, `<div id="x"><p>First   line</p><span>second</span><span> part</span><script>var x;</script><br>third</div>`)
	assert.Equal(t, "First line\nsecond part\nthird", VisibleText(doc.Find("#x")))
}

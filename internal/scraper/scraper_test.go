package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/internal/auth"
	"fbscrape/internal/cache"
	"fbscrape/internal/checkpoint"
	"fbscrape/internal/config"
	"fbscrape/internal/extract"
	"fbscrape/internal/selectors"
	"fbscrape/pkg/types"
)

const (
	testTarget = "https://www.facebook.com/groups/123"

	testFeed = `<html><body>
<div role="feed">
  <div aria-posinset="1" data-fbs-idx="0">
    <h2><strong><a href="/alice.smith" role="link">Alice Smith</a></strong></h2>
    <a href="https://www.facebook.com/groups/123/posts/1001/" role="link"><span>2h</span></a>
    <div data-ad-preview="message"><div dir="auto">First post of the group with enough words in it.</div></div>
    <div role="button">Comment</div>
  </div>
  <div aria-posinset="2" data-fbs-idx="1">
    <h2><strong><a href="/bob.jones" role="link">Bob Jones</a></strong></h2>
    <a href="https://www.facebook.com/groups/123/posts/1002/" role="link"><span>5h</span></a>
    <div data-ad-preview="message"><div dir="auto">Second post, also long enough to count as a post.</div></div>
    <div role="button">Comment</div>
  </div>
</div>
</body></html>`

	testPost1 = "https://www.facebook.com/groups/123/posts/1001/"
	testPost2 = "https://www.facebook.com/groups/123/posts/1002/"

	testCookies = `[
  {"name": "c_user", "value": "100001", "domain": ".facebook.com", "path": "/"},
  {"name": "xs", "value": "abc", "domain": ".facebook.com", "path": "/"}
]`
)

func commentList(author, text string) string {
	return fmt.Sprintf(`<ul role="list"><li>
  <div role="article" aria-label="Comment by %[1]s">
    <a role="link" href="/someone"><span class="x3nfvp2">%[1]s</span></a>
    <div dir="auto">%[2]s</div>
  </div>
</li></ul>`, author, text)
}

func modalFor(author, text string) string {
	return `<div role="dialog">` + commentList(author, text) + `</div>`
}

func postPage(author, text string) string {
	return `<html><body>` + commentList(author, text) + `</body></html>`
}

// fakeDriver serves canned pages and answers the page action scripts by
// recognizing them.
type fakeDriver struct {
	mu sync.Mutex

	pages     map[string]string
	redirects map[string]string
	// modals maps a post index to the dialog its comment button opens.
	modals map[string]string
	// clickTo maps a post index to the page its comment button navigates to.
	clickTo map[string]string
	// inline marks posts whose comment button expands comments in place.
	inline map[string]bool
	// onClick runs when the comment button of a post is clicked.
	onClick func(index string)

	url         string
	modalOpen   string
	height      int
	offset      int
	cookies     []auth.Cookie
	navigations []string
	history     []string
	scrollTos   []int
	bottoms     int
	clicks      int
	backs       int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		pages:     map[string]string{testTarget: testFeed},
		redirects: map[string]string{},
		modals:    map[string]string{},
		clickTo:   map[string]string{},
		inline:    map[string]bool{},
		height:    1000,
	}
}

func (d *fakeDriver) Navigate(_ context.Context, u string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, u)
	if d.url != "" {
		d.history = append(d.history, d.url)
	}
	if to, ok := d.redirects[u]; ok {
		u = to
	}
	d.url = u
	d.modalOpen = ""
	d.offset = 0
	return nil
}

func (d *fakeDriver) CurrentURL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *fakeDriver) HTML(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	page, ok := d.pages[d.url]
	if !ok {
		page = `<html><body></body></html>`
	}
	if d.modalOpen != "" {
		page = strings.Replace(page, "</body>", d.modalOpen+"</body>", 1)
	}
	return page, nil
}

func (d *fakeDriver) WaitVisible(context.Context, string, time.Duration) error {
	return nil
}

func (d *fakeDriver) Eval(_ context.Context, script string, out interface{}) error {
	d.mu.Lock()
	var (
		result  interface{}
		clicked string
	)
	switch {
	case strings.Contains(script, "__fbsNext"):
		result = strings.Count(d.pages[d.url], extract.IndexAttr)
	case strings.Contains(script, "getComputedStyle"):
		result = d.modalOpen != ""
	case strings.Contains(script, "scrollIntoView"):
		clicked = d.clickedIndex(script)
		result = clicked != ""
		if clicked != "" {
			d.clicks++
			if modal, ok := d.modals[clicked]; ok {
				d.modalOpen = modal
			} else if to, ok := d.clickTo[clicked]; ok {
				d.history = append(d.history, d.url)
				d.url = to
			}
		}
	case strings.Contains(script, "sels.some"):
		result = d.modalOpen != ""
	case strings.Contains(script, "Escape"):
		d.modalOpen = ""
	case strings.Contains(script, "pageYOffset"):
		result = d.offset
	case strings.Contains(script, "window.scrollTo(0, h)"):
		result = d.height
		d.offset = d.height
		d.bottoms++
	case strings.HasPrefix(script, "window.scrollTo(0, "):
		var y int
		if _, err := fmt.Sscanf(script, "window.scrollTo(0, %d)", &y); err == nil {
			d.offset = y
			d.scrollTos = append(d.scrollTos, y)
		}
	case strings.Contains(script, "scrollHeight"):
		result = d.height
	}
	onClick := d.onClick
	d.mu.Unlock()

	if clicked != "" && onClick != nil {
		onClick(clicked)
	}
	if out == nil || result == nil {
		return nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// clickedIndex returns the post whose comment button a click script is
// scoped to. Callers hold d.mu.
func (d *fakeDriver) clickedIndex(script string) string {
	var keys []string
	for idx := range d.modals {
		keys = append(keys, idx)
	}
	for idx := range d.clickTo {
		keys = append(keys, idx)
	}
	for idx := range d.inline {
		keys = append(keys, idx)
	}
	for _, idx := range keys {
		if strings.Contains(script, fmt.Sprintf(`%s=\"%s\"`, extract.IndexAttr, idx)) {
			return idx
		}
	}
	return ""
}

func (d *fakeDriver) SetCookies(_ context.Context, cookies []auth.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = append([]auth.Cookie(nil), cookies...)
	return nil
}

func (d *fakeDriver) Cookies(context.Context) ([]auth.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cookies, nil
}

func (d *fakeDriver) Back(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backs++
	if n := len(d.history); n > 0 {
		d.url = d.history[n-1]
		d.history = d.history[:n-1]
	}
	return nil
}

func (d *fakeDriver) Close() error { return nil }

type fakeStore struct {
	results []*types.ScrapeResult
}

func (s *fakeStore) SaveResult(_ context.Context, r *types.ScrapeResult) (int, error) {
	s.results = append(s.results, r)
	return len(r.Posts), nil
}

func testConfig(t *testing.T) config.ScraperConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default().Scraper
	cfg.GroupURL = testTarget
	cfg.CookiesFile = filepath.Join(dir, "cookies.json")
	cfg.OutputDir = dir
	cfg.ScrollDelay = 0
	cfg.PageLoadTimeout = time.Second
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond
	cfg.EmptyScrollLimit = 2
	cfg.MaxScrollAttempts = 5
	cfg.CommentLoadRounds = 1
	cfg.MinTextLength = 20
	cfg.ParallelWorkers = 2
	return cfg
}

func newTestScraper(d *fakeDriver, cfg config.ScraperConfig, opts ...Option) *Scraper {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithLogger(logger),
		WithSettleDelay(0),
		WithClock(func() time.Time { return now }),
	}, opts...)
	return New(d, cfg, opts...)
}

func TestScraper_Run_FeedWithModalComments(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.CookiesFile, []byte(testCookies), 0600))

	d := newFakeDriver()
	d.modals["0"] = modalFor("Carol White", "Great post, thanks for sharing!")
	d.modals["1"] = modalFor("Dan Brown", "Count me in for the next one.")
	store := &fakeStore{}

	result, err := newTestScraper(d, cfg, WithStore(store), WithUser("tester")).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Posts, 2)
	assert.Equal(t, "Alice Smith", result.Posts[0].Author.Name)
	assert.Equal(t, "Bob Jones", result.Posts[1].Author.Name)

	require.Len(t, result.Posts[0].Comments, 1)
	assert.Equal(t, "Carol White", result.Posts[0].Comments[0].Author.Name)
	assert.Equal(t, "Great post, thanks for sharing!", result.Posts[0].Comments[0].Text)
	assert.True(t, result.Posts[0].FullCommentsExtracted)
	require.Len(t, result.Posts[1].Comments, 1)
	assert.Equal(t, "Dan Brown", result.Posts[1].Comments[0].Author.Name)

	assert.Equal(t, 2, result.Statistics.TotalPosts)
	assert.Equal(t, 2, result.Statistics.TotalComments)
	assert.Equal(t, "tester", result.ScraperInfo.User)
	assert.Equal(t, testTarget, result.ScraperInfo.TargetURL)
	assert.NotEmpty(t, result.ScraperInfo.RunID)

	// base page for cookies, then the target
	assert.Equal(t, []string{extract.BaseURL, testTarget}, d.navigations)
	assert.Len(t, d.cookies, 2)
	// two empty scrolls end the run
	assert.Equal(t, 2, d.bottoms)
	assert.Empty(t, d.modalOpen)

	require.Len(t, store.results, 1)
	assert.Same(t, result, store.results[0])

	saved, err := auth.LoadCookies(cfg.CookiesFile)
	require.NoError(t, err)
	assert.Len(t, saved, 2)

	_, err = checkpoint.NewManager(filepath.Join(cfg.OutputDir, "checkpoints"), 5, logrus.New()).Latest()
	assert.ErrorIs(t, err, checkpoint.ErrNoCheckpoint)
}

func TestScraper_Run_MaxPosts(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxPosts = 1
	cfg.ExtractComments = false

	result, err := newTestScraper(newFakeDriver(), cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "Alice Smith", result.Posts[0].Author.Name)
	assert.Empty(t, result.Posts[0].Comments)
	assert.False(t, result.Posts[0].FullCommentsExtracted)
}

func TestScraper_Run_NotLoggedIn(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDriver()
	d.redirects[testTarget] = "https://www.facebook.com/login/?next=groups"

	result, err := newTestScraper(d, cfg).Run(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Nil(t, result)
	// without a cookie file the base page is skipped
	assert.Equal(t, []string{testTarget}, d.navigations)
}

func TestScraper_Run_WaitLogin(t *testing.T) {
	cfg := testConfig(t)
	cfg.WaitLogin = true
	cfg.ExtractComments = false
	d := newFakeDriver()
	d.redirects[testTarget] = "https://www.facebook.com/login/?next=groups"

	prompted := 0
	prompt := func(context.Context) error {
		prompted++
		d.mu.Lock()
		delete(d.redirects, testTarget)
		d.mu.Unlock()
		return nil
	}

	result, err := newTestScraper(d, cfg, WithLoginPrompt(prompt)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, prompted)
	assert.Len(t, result.Posts, 2)
}

func TestScraper_Run_InvalidURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.GroupURL = "https://example.com/groups/1"

	_, err := newTestScraper(newFakeDriver(), cfg).Run(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidURL)
}

func TestScraper_Run_Resume(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resume = true
	cfg.MaxPosts = 2
	cfg.ExtractComments = false

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testFeed))
	require.NoError(t, err)
	parser := extract.NewParser(selectors.Desktop(), logrus.New(), extract.WithMinPostText(20))
	frags := parser.Fragments(doc)
	require.Len(t, frags, 2)
	first := parser.ParsePost(frags[0].Sel, time.Now())

	cps := checkpoint.NewManager(filepath.Join(cfg.OutputDir, "checkpoints"), 5, logrus.New())
	_, err = cps.Save(&checkpoint.Checkpoint{
		RunID:              "run-1",
		TargetURL:          testTarget,
		ProcessedPosts:     []types.Post{first},
		LastScrollPosition: 800,
		ScrollCount:        1,
	})
	require.NoError(t, err)

	d := newFakeDriver()
	result, err := newTestScraper(d, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.ScraperInfo.RunID)
	require.Len(t, result.Posts, 2)
	assert.Equal(t, first.Key(), result.Posts[0].Key())
	assert.Equal(t, "Bob Jones", result.Posts[1].Author.Name)
	assert.Contains(t, d.scrollTos, 800)

	_, err = cps.Latest()
	assert.ErrorIs(t, err, checkpoint.ErrNoCheckpoint)
}

func TestScraper_Run_CancelSavesCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newFakeDriver()
	d.modals["0"] = modalFor("Carol White", "Great post, thanks for sharing!")
	d.modals["1"] = modalFor("Dan Brown", "Count me in for the next one.")
	d.onClick = func(index string) {
		if index == "1" {
			cancel()
		}
	}

	result, err := newTestScraper(d, cfg).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "Alice Smith", result.Posts[0].Author.Name)

	cp, err := checkpoint.NewManager(filepath.Join(cfg.OutputDir, "checkpoints"), 5, logrus.New()).LatestFor(testTarget)
	require.NoError(t, err)
	assert.Equal(t, result.ScraperInfo.RunID, cp.RunID)
	assert.Len(t, cp.ProcessedPosts, 1)
}

func TestScraper_Run_Filter(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExtractComments = false
	cfg.Filter = types.PostFilter{Keywords: []string{"second"}}

	result, err := newTestScraper(newFakeDriver(), cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "Bob Jones", result.Posts[0].Author.Name)
	assert.Equal(t, 1, result.Statistics.TotalPosts)
}

func TestScraper_Run_ReusesCachedPosts(t *testing.T) {
	cfg := testConfig(t)
	posts := cache.New(100, time.Hour)

	first := newFakeDriver()
	first.modals["0"] = modalFor("Carol White", "Great post, thanks for sharing!")
	first.modals["1"] = modalFor("Dan Brown", "Count me in for the next one.")
	_, err := newTestScraper(first, cfg, WithCache(posts)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.clicks)

	// two misses on the first snapshot, then hits on the two rescans
	stats := posts.Stats()
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(4), stats.Hits)
	assert.Equal(t, 2, stats.Size)

	second := newFakeDriver()
	second.modals["0"] = modalFor("Someone Else", "This dialog should never be opened.")
	s := newTestScraper(second, cfg, WithCache(posts))
	result, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, second.clicks)
	require.Len(t, result.Posts, 2)
	require.Len(t, result.Posts[0].Comments, 1)
	assert.Equal(t, "Carol White", result.Posts[0].Comments[0].Author.Name)
	assert.Equal(t, "Dan Brown", result.Posts[1].Comments[0].Author.Name)
	assert.Equal(t, 2, result.Statistics.TotalComments)

	assert.Equal(t, int64(10), posts.Stats().Hits)
	assert.Equal(t, int64(2), posts.Stats().Misses)
	assert.InDelta(t, 1.0, s.Performance().Summary().CacheHitRate, 1e-9)
}

func TestScraper_Run_PermalinkMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "permalink"

	d := newFakeDriver()
	d.pages[testPost1] = postPage("Carol White", "Great post, thanks for sharing!")
	d.pages[testPost2] = postPage("Dan Brown", "Count me in for the next one.")

	result, err := newTestScraper(d, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Posts, 2)
	require.Len(t, result.Posts[0].Comments, 1)
	assert.Equal(t, "Carol White", result.Posts[0].Comments[0].Author.Name)
	assert.True(t, result.Posts[0].FullCommentsExtracted)
	require.Len(t, result.Posts[1].Comments, 1)
	assert.Equal(t, "Dan Brown", result.Posts[1].Comments[0].Author.Name)

	// one return to the feed after the batch; empty scrolls stay put
	assert.Equal(t, []string{testTarget, testPost1, testPost2, testTarget}, d.navigations)
	assert.Zero(t, d.clicks)
}

func TestScraper_Run_CommentsOnNavigatedPage(t *testing.T) {
	cfg := testConfig(t)

	d := newFakeDriver()
	d.clickTo["0"] = testPost1
	d.clickTo["1"] = testPost2
	d.pages[testPost1] = postPage("Carol White", "Great post, thanks for sharing!")
	d.pages[testPost2] = postPage("Dan Brown", "Count me in for the next one.")

	result, err := newTestScraper(d, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Posts, 2)
	require.Len(t, result.Posts[0].Comments, 1)
	assert.Equal(t, "Carol White", result.Posts[0].Comments[0].Author.Name)
	assert.True(t, result.Posts[0].FullCommentsExtracted)
	require.Len(t, result.Posts[1].Comments, 1)
	assert.Equal(t, "Dan Brown", result.Posts[1].Comments[0].Author.Name)

	assert.Equal(t, 2, d.backs)
	assert.Equal(t, []string{testTarget}, d.navigations)
	assert.Equal(t, testTarget, d.url)
}

func TestScraper_Run_InlineCommentsAndPermalinkFallback(t *testing.T) {
	cfg := testConfig(t)

	d := newFakeDriver()
	d.pages[testTarget] = strings.Replace(testFeed, `<div role="button">Comment</div>`,
		`<div role="button">Comment</div>`+commentList("Carol White", "Great post, thanks for sharing!"), 1)
	d.pages[testPost2] = postPage("Dan Brown", "Count me in for the next one.")
	// the first post expands in place; the second has no comment button
	d.inline["0"] = true

	result, err := newTestScraper(d, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Posts, 2)
	require.Len(t, result.Posts[0].Comments, 1)
	assert.Equal(t, "Carol White", result.Posts[0].Comments[0].Author.Name)
	assert.False(t, result.Posts[0].FullCommentsExtracted)

	require.Len(t, result.Posts[1].Comments, 1)
	assert.Equal(t, "Dan Brown", result.Posts[1].Comments[0].Author.Name)
	assert.True(t, result.Posts[1].FullCommentsExtracted)

	assert.Equal(t, []string{testTarget, testPost2, testTarget}, d.navigations)
	assert.Zero(t, d.backs)
}

func TestIsLoginURL(t *testing.T) {
	assert.True(t, isLoginURL("https://www.facebook.com/login/?next=x"))
	assert.True(t, isLoginURL("https://m.facebook.com/login.php"))
	assert.True(t, isLoginURL("https://www.facebook.com/checkpoint/123"))
	assert.False(t, isLoginURL(testTarget))
}

func TestScraper_PickProfile(t *testing.T) {
	s := newTestScraper(newFakeDriver(), testConfig(t))
	assert.Equal(t, "mobile", s.pickProfile("https://m.facebook.com/groups/1").Name)
	assert.Equal(t, "mobile", s.pickProfile("https://mbasic.facebook.com/groups/1").Name)
	assert.Equal(t, "desktop", s.pickProfile(testTarget).Name)

	s = newTestScraper(newFakeDriver(), testConfig(t), WithProfile(selectors.Mobile()))
	assert.Equal(t, "mobile", s.pickProfile(testTarget).Name)
}

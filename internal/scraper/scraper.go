// Package scraper drives one browser through a Facebook feed and turns what
// it shows into posts with comments.
package scraper

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fbscrape/internal/analyzer"
	"fbscrape/internal/browser"
	"fbscrape/internal/cache"
	"fbscrape/internal/checkpoint"
	"fbscrape/internal/config"
	"fbscrape/internal/extract"
	"fbscrape/internal/monitoring"
	"fbscrape/internal/selectors"
	"fbscrape/pkg/types"
)

const Version = "2.0.0"

var ErrNotLoggedIn = errors.New("not logged in to facebook")

// Store receives the final result of a run.
type Store interface {
	SaveResult(ctx context.Context, result *types.ScrapeResult) (int, error)
}

// Scraper runs scraping sessions against one target with one driver. It is
// not safe for concurrent Runs: the browser is a single resource.
type Scraper struct {
	driver browser.Driver
	cfg    config.ScraperConfig
	logger *logrus.Logger

	baseURL     string
	profile     *selectors.Profile
	cache       *cache.PostCache
	checkpoints *checkpoint.Manager
	perf        *monitoring.PerformanceMonitor
	store       Store
	prompt      func(ctx context.Context) error
	user        string
	settle      time.Duration
	now         func() time.Time

	active selectors.Profile
	parser *extract.Parser
}

type Option func(*Scraper)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Scraper) { s.logger = logger }
}

// WithBaseURL sets the site root visited before cookies are installed.
func WithBaseURL(u string) Option {
	return func(s *Scraper) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithProfile overrides the selector profile picked from the target host.
func WithProfile(p selectors.Profile) Option {
	return func(s *Scraper) { s.profile = &p }
}

func WithCache(c *cache.PostCache) Option {
	return func(s *Scraper) { s.cache = c }
}

func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(s *Scraper) { s.checkpoints = m }
}

func WithPerformanceMonitor(pm *monitoring.PerformanceMonitor) Option {
	return func(s *Scraper) { s.perf = pm }
}

func WithStore(store Store) Option {
	return func(s *Scraper) { s.store = store }
}

// WithLoginPrompt sets the function that blocks until the operator has
// logged in by hand. It is used when wait_login is on.
func WithLoginPrompt(prompt func(ctx context.Context) error) Option {
	return func(s *Scraper) { s.prompt = prompt }
}

// WithUser records who ran the scraper in the output metadata.
func WithUser(user string) Option {
	return func(s *Scraper) { s.user = user }
}

// WithSettleDelay sets the pause after clicks before the page is read.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Scraper) { s.settle = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

func New(driver browser.Driver, cfg config.ScraperConfig, opts ...Option) *Scraper {
	s := &Scraper{
		driver:  driver,
		cfg:     cfg,
		baseURL: extract.BaseURL,
		settle:  2 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	if s.cfg.ParallelWorkers <= 0 {
		s.cfg.ParallelWorkers = 1
	}
	if s.cfg.MaxPosts <= 0 {
		s.cfg.MaxPosts = 10
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 5
	}
	if s.cfg.CheckpointEvery <= 0 {
		s.cfg.CheckpointEvery = 10
	}
	if s.cfg.EmptyScrollLimit <= 0 {
		s.cfg.EmptyScrollLimit = 5
	}
	if s.cfg.RetryAttempts <= 0 {
		s.cfg.RetryAttempts = 1
	}
	if s.cache == nil {
		s.cache = cache.New(s.cfg.CacheSize, s.cfg.CacheTTL)
	}
	if s.checkpoints == nil {
		s.checkpoints = checkpoint.NewManager(filepath.Join(s.cfg.OutputDir, "checkpoints"), s.cfg.CheckpointKeep, s.logger)
	}
	if s.perf == nil {
		s.perf = monitoring.NewPerformanceMonitor(s.logger)
	}
	return s
}

// Performance exposes the run metrics, for a /metrics endpoint.
func (s *Scraper) Performance() *monitoring.PerformanceMonitor {
	return s.perf
}

func (s *Scraper) pickProfile(target string) selectors.Profile {
	if s.profile != nil {
		return *s.profile
	}
	u, err := url.Parse(target)
	if err == nil && (strings.HasPrefix(u.Host, "m.") || strings.HasPrefix(u.Host, "mbasic.")) {
		return selectors.Mobile()
	}
	return selectors.Desktop()
}

// Run scrapes the configured target until max_posts posts are collected or
// the feed stops growing. When ctx is cancelled mid-run a checkpoint is
// written and the partial result is returned together with ctx's error.
func (s *Scraper) Run(ctx context.Context) (*types.ScrapeResult, error) {
	target := s.cfg.GroupURL
	if err := config.ValidateURL(target); err != nil {
		return nil, err
	}

	start := s.now()
	st := &runState{
		id:     uuid.NewString(),
		target: target,
		seen:   make(map[string]bool),
	}
	s.logger.Infof("Starting run %s for %s (max %d posts, mode %s)", st.id, target, s.cfg.MaxPosts, s.cfg.Mode)

	monCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	s.perf.Start(monCtx, 5*time.Second, s.cfg.MaxMemoryMB)

	if err := s.openTarget(ctx, target); err != nil {
		return nil, err
	}

	profile := s.pickProfile(target)
	if s.cfg.AutoDetectSelectors {
		profile = s.detectSelectors(ctx, profile)
	}
	s.active = profile
	s.parser = extract.NewParser(profile, s.logger,
		extract.WithMinPostText(s.cfg.MinTextLength),
		extract.WithMaxReplies(s.cfg.MaxReplies))

	if s.cfg.Resume {
		s.resume(ctx, st)
	}

	runErr := s.collect(ctx, st)
	interrupted := ctx.Err() != nil

	if interrupted {
		s.logger.Warn("Run interrupted, saving checkpoint")
		s.saveCheckpoint(st)
	} else if runErr != nil {
		s.logger.Errorf("Scraping stopped early: %v", runErr)
		s.saveCheckpoint(st)
	}

	result := s.buildResult(st, start)

	// the caller's ctx may be done; finish with a detached one
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.saveSessionCookies(finishCtx)

	if s.store != nil && len(result.Posts) > 0 {
		if n, err := s.store.SaveResult(finishCtx, result); err != nil {
			s.logger.Errorf("Failed to store results: %v", err)
		} else {
			s.logger.Infof("Stored %d posts in the database", n)
		}
	}

	if !interrupted && runErr == nil {
		if err := s.checkpoints.Clear(); err != nil {
			s.logger.Warnf("Failed to clear checkpoints: %v", err)
		}
	}

	s.logger.Infof("Run %s finished: %d posts, %d comments; %s",
		st.id, result.Statistics.TotalPosts, result.Statistics.TotalComments, s.perf.Summary())

	if interrupted {
		return result, ctx.Err()
	}
	return result, runErr
}

func (s *Scraper) buildResult(st *runState, start time.Time) *types.ScrapeResult {
	posts := st.posts
	if !s.cfg.Filter.IsZero() {
		var stats types.FilterStats
		posts, stats = BatchFilter(posts, &s.cfg.Filter, s.now())
		s.logger.Infof("Filter results: %s", stats)
	}
	if posts == nil {
		posts = []types.Post{}
	}

	stats := types.ComputeStatistics(posts)
	stats.DurationSeconds = s.now().Sub(start).Seconds()

	return &types.ScrapeResult{
		ScraperInfo: types.ScraperInfo{
			Version:   Version,
			Timestamp: start,
			User:      s.user,
			RunID:     st.id,
			TargetURL: st.target,
		},
		Posts:      posts,
		Statistics: stats,
	}
}

// runState is the progress of one Run.
type runState struct {
	id      string
	target  string
	posts   []types.Post
	seen    map[string]bool
	scrolls int
	offset  int
	pending int
}

func (st *runState) add(p types.Post) {
	st.posts = append(st.posts, p)
	st.pending++
}

func (s *Scraper) saveCheckpoint(st *runState) {
	_, err := s.checkpoints.Save(&checkpoint.Checkpoint{
		RunID:              st.id,
		TargetURL:          st.target,
		ProcessedPosts:     st.posts,
		LastScrollPosition: st.offset,
		ScrollCount:        st.scrolls,
		Config:             s.cfg,
	})
	if err != nil {
		s.logger.Errorf("Failed to save checkpoint: %v", err)
		return
	}
	st.pending = 0
}

func (s *Scraper) resume(ctx context.Context, st *runState) {
	cp, err := s.checkpoints.LatestFor(st.target)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		s.logger.Info("No checkpoint to resume from")
		return
	}
	if err != nil {
		s.logger.Warnf("Failed to load checkpoint: %v", err)
		return
	}

	st.id = cp.RunID
	st.scrolls = cp.ScrollCount
	st.offset = cp.LastScrollPosition
	for _, p := range cp.ProcessedPosts {
		st.seen[p.Key()] = true
		st.posts = append(st.posts, p)
		s.cache.Put(p)
	}
	s.logger.Infof("Resuming run %s: %d posts, scroll position %d", st.id, len(st.posts), st.offset)

	if st.offset > 0 {
		if err := browser.ScrollTo(ctx, s.driver, st.offset); err != nil {
			s.logger.Warnf("Failed to restore scroll position: %v", err)
		}
		_ = browser.Sleep(ctx, s.cfg.ScrollDelay)
	}
}

func (s *Scraper) detectSelectors(ctx context.Context, base selectors.Profile) selectors.Profile {
	doc, err := s.snapshot(ctx)
	if err != nil {
		s.logger.Warnf("Selector detection skipped: %v", err)
		return base
	}
	found := analyzer.New(s.logger).AnalyzeFeed(doc).ToProfile()
	s.logger.Infof("Detected selectors: posts %v, comments %v", found.Posts, found.Comments)
	return base.Prepend(found)
}

func isLoginURL(u string) bool {
	u = strings.ToLower(u)
	return strings.Contains(u, "/login") || strings.Contains(u, "/checkpoint/") || strings.Contains(u, "login.php")
}

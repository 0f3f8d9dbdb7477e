package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fbscrape/internal/browser"
	"fbscrape/internal/extract"
	"fbscrape/pkg/types"
)

// candidate is a freshly parsed post together with the index tag of its
// element in the live page.
type candidate struct {
	post  types.Post
	index string
	took  time.Duration
	// cached posts were processed by an earlier run and keep its comments
	cached bool
}

// collect scrolls the feed until enough posts are gathered, the scroll
// budget is spent or the feed stops producing new posts.
func (s *Scraper) collect(ctx context.Context, st *runState) error {
	empty := 0
	for len(st.posts) < s.cfg.MaxPosts && st.scrolls < s.cfg.MaxScrollAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		fresh, err := s.harvest(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.perf.RecordError()
			s.logger.Warnf("Failed to read posts at scroll %d: %v", st.scrolls, err)
		}

		if len(fresh) == 0 {
			empty++
			s.logger.Debugf("No new posts after scroll %d (%d/%d)", st.scrolls, empty, s.cfg.EmptyScrollLimit)
			if empty >= s.cfg.EmptyScrollLimit {
				s.logger.Infof("Feed stopped producing new posts after %d scrolls", st.scrolls)
				return nil
			}
		} else {
			empty = 0
			s.logger.Infof("Found %d new posts (%d/%d collected)", len(fresh), len(st.posts), s.cfg.MaxPosts)
		}

		if err := s.process(ctx, st, fresh); err != nil {
			return err
		}
		if len(st.posts) >= s.cfg.MaxPosts {
			break
		}

		if err := s.scroll(ctx, st); err != nil {
			return err
		}
		if st.scrolls%s.cfg.CheckpointEvery == 0 {
			s.saveCheckpoint(st)
		}
	}

	if st.scrolls >= s.cfg.MaxScrollAttempts {
		s.logger.Infof("Reached the scroll limit of %d", s.cfg.MaxScrollAttempts)
	}
	return nil
}

// process adds fresh posts to the run, with comments when enabled.
func (s *Scraper) process(ctx context.Context, st *runState, fresh []candidate) error {
	left := false
	defer func() {
		if left {
			s.returnToFeed(ctx, st)
		}
	}()

	for _, c := range fresh {
		if len(st.posts) >= s.cfg.MaxPosts {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		post := c.post
		if s.cfg.ExtractComments && !c.cached {
			if s.cfg.Mode == "permalink" && post.PostURL != "" {
				left = true
			}
			s.attachComments(ctx, &post, c.index)
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		st.add(post)
		if !c.cached {
			s.cache.Put(post)
		}
		s.perf.RecordPostProcessed(c.took + time.Since(started))
		s.perf.RecordComments(post.CommentCount())
		s.logger.Debugf("Post %s by %q: %d comments", post.ID, post.Author.Name, post.CommentCount())

		if st.pending >= s.cfg.BatchSize {
			s.saveCheckpoint(st)
		}
	}
	return nil
}

// harvest tags the post elements in the live page, snapshots it and
// returns the posts not seen before in this run. A post still in the cache
// from an earlier run is returned as it was processed then.
func (s *Scraper) harvest(ctx context.Context, st *runState) ([]candidate, error) {
	if _, err := browser.TagElements(ctx, s.driver, s.active.Posts, extract.IndexAttr); err != nil {
		s.logger.Debugf("Tagging posts failed: %v", err)
	}

	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	frags := s.parser.Fragments(doc)
	parsed, err := s.parseFragments(ctx, frags)
	if err != nil {
		return nil, err
	}

	fresh := make([]candidate, 0, len(parsed))
	for _, c := range parsed {
		if c.post.Content == "" && c.post.Author.Name == "" {
			s.logger.Warnf("Skipping post %s without author or content", c.post.ID)
			continue
		}
		key := c.post.Key()
		cached, hit := s.cache.Get(key)
		if hit {
			s.perf.RecordCacheHit()
		} else {
			s.perf.RecordCacheMiss()
		}
		if st.seen[key] {
			continue
		}
		st.seen[key] = true
		if hit {
			s.logger.Debugf("Post %s was processed recently, reusing it", key)
			c.post = cached
			c.cached = true
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// parseFragments parses the fragments on a bounded worker pool. The
// snapshot is never modified, so workers share it without locking. Results
// keep the page order.
func (s *Scraper) parseFragments(ctx context.Context, frags []extract.Fragment) ([]candidate, error) {
	out := make([]candidate, len(frags))
	now := s.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ParallelWorkers)
	for i, f := range frags {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			out[i] = candidate{
				post:  s.parser.ParsePost(f.Sel, now),
				index: f.Index,
				took:  time.Since(started),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to parse posts: %w", err)
	}
	return out, nil
}

// scroll moves the feed to the bottom. When the document did not grow it
// clicks a "See more" style button to nudge the feed.
func (s *Scraper) scroll(ctx context.Context, st *runState) error {
	before, err := browser.ScrollToBottom(ctx, s.driver)
	if err != nil {
		s.logger.Warnf("Scroll failed: %v", err)
	}
	st.scrolls++

	if err := browser.Sleep(ctx, s.cfg.ScrollDelay); err != nil {
		return err
	}

	after, err := browser.ScrollHeight(ctx, s.driver)
	if err == nil && after <= before {
		clicked, err := browser.ClickByText(ctx, s.driver, "", s.active.LoadMore, s.active.SeeMoreWords)
		if err != nil {
			s.logger.Debugf("Show more click failed: %v", err)
		}
		if clicked {
			s.logger.Debug("Feed stalled, clicked a show more button")
			if err := browser.Sleep(ctx, s.settle); err != nil {
				return err
			}
		}
	}

	if offset, err := browser.ScrollOffset(ctx, s.driver); err == nil {
		st.offset = offset
	}
	return nil
}

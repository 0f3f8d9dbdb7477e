package scraper

import (
	"context"
	"fmt"

	"fbscrape/internal/browser"
	"fbscrape/internal/extract"
	"fbscrape/pkg/types"
)

// attachComments opens the comments of post and parses them. Failures are
// logged and leave the post without comments.
func (s *Scraper) attachComments(ctx context.Context, post *types.Post, index string) {
	var (
		comments []types.Comment
		full     bool
		err      error
	)
	if s.cfg.Mode == "permalink" {
		comments, err = s.commentsFromPermalink(ctx, post.PostURL)
		full = err == nil && post.PostURL != ""
	} else {
		comments, full, err = s.commentsFromFeed(ctx, post, index)
	}
	if err != nil {
		s.perf.RecordError()
		s.logger.Warnf("Failed to extract comments for post %s: %v", post.ID, err)
		return
	}

	post.Comments = comments
	post.FullCommentsExtracted = full
	if n := len(comments); n > post.Engagement.Comments {
		post.Engagement.Comments = n
	}
}

// commentsFromFeed clicks the post's comment button and reads the comments
// wherever they appear: in a dialog, on a post page the click navigated to,
// or expanded inline under the post. It reports whether the full comment
// view was read.
func (s *Scraper) commentsFromFeed(ctx context.Context, post *types.Post, index string) ([]types.Comment, bool, error) {
	scope := fmt.Sprintf(`[%s="%s"]`, extract.IndexAttr, index)

	feedURL, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return nil, false, err
	}
	offset, err := browser.ScrollOffset(ctx, s.driver)
	if err != nil {
		return nil, false, err
	}

	clicked := false
	if index != "" {
		clicked, err = browser.ClickByText(ctx, s.driver, scope, s.active.CommentButton, s.active.CommentButtonWords)
		if err != nil {
			return nil, false, err
		}
	}
	if !clicked {
		if post.PostURL == "" {
			s.logger.Debugf("No comment button for post %s", post.ID)
			return nil, false, nil
		}
		comments, err := s.commentsFromPermalink(ctx, post.PostURL)
		if rerr := s.reopenFeed(ctx, feedURL, offset); err == nil {
			err = rerr
		}
		return comments, err == nil, err
	}
	if err := browser.Sleep(ctx, s.settle); err != nil {
		return nil, false, err
	}

	modalOpen, err := browser.Exists(ctx, s.driver, s.active.Modal)
	if err != nil {
		return nil, false, err
	}
	if modalOpen {
		s.logger.Debugf("Comments of post %s opened in a dialog", post.ID)
		s.loadMoreComments(ctx, s.active.Modal.CSS(), true)
		doc, err := s.snapshot(ctx)
		if err != nil {
			return nil, false, err
		}
		comments := s.parser.ParseComments(doc.Selection, s.now())
		if err := browser.CloseModal(ctx, s.driver, s.active.Modal, s.active.CloseButtons, s.settle/2); err != nil {
			s.logger.Warnf("Failed to close comments dialog: %v", err)
		}
		return comments, true, nil
	}

	current, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return nil, false, err
	}
	if current != feedURL {
		s.logger.Debugf("Comments of post %s opened on %s", post.ID, current)
		s.loadMoreComments(ctx, "", false)
		doc, err := s.snapshot(ctx)
		if err != nil {
			return nil, false, err
		}
		comments := s.parser.ParseComments(doc.Selection, s.now())
		if err := s.driver.Back(ctx); err != nil {
			return comments, true, s.reopenFeed(ctx, feedURL, offset)
		}
		if err := browser.Sleep(ctx, s.settle); err != nil {
			return comments, true, err
		}
		return comments, true, nil
	}

	s.logger.Debugf("Comments of post %s expanded inline", post.ID)
	s.loadMoreComments(ctx, scope, false)
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	root := doc.Find(scope)
	if root.Length() == 0 {
		return nil, false, nil
	}
	return s.parser.ParseComments(root.First(), s.now()), false, nil
}

// commentsFromPermalink visits the post page and reads its comments.
func (s *Scraper) commentsFromPermalink(ctx context.Context, postURL string) ([]types.Comment, error) {
	if postURL == "" {
		return nil, nil
	}
	if err := s.navigate(ctx, postURL); err != nil {
		return nil, err
	}
	if err := browser.Sleep(ctx, s.settle); err != nil {
		return nil, err
	}
	s.loadMoreComments(ctx, "", false)
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.parser.ParseComments(doc.Selection, s.now()), nil
}

// loadMoreComments clicks "View more comments" style buttons inside scope
// for up to comment_load_rounds rounds, scrolling the dialog first when the
// comments are in one.
func (s *Scraper) loadMoreComments(ctx context.Context, scope string, inModal bool) {
	for round := 0; round < s.cfg.CommentLoadRounds; round++ {
		if inModal {
			if _, err := browser.ScrollModal(ctx, s.driver, s.active.Modal); err != nil {
				s.logger.Debugf("Dialog scroll failed: %v", err)
			}
		}
		clicked, err := browser.ClickByText(ctx, s.driver, scope, s.active.LoadMore, s.active.LoadMoreWords)
		if err != nil {
			s.logger.Debugf("Load more comments failed: %v", err)
			return
		}
		if !clicked {
			return
		}
		if err := browser.Sleep(ctx, s.settle); err != nil {
			return
		}
	}
}

// reopenFeed navigates back to the feed and restores the scroll offset.
func (s *Scraper) reopenFeed(ctx context.Context, feedURL string, offset int) error {
	if err := s.navigate(ctx, feedURL); err != nil {
		return err
	}
	if offset <= 0 {
		return nil
	}
	return browser.ScrollTo(ctx, s.driver, offset)
}

// returnToFeed reopens the feed after permalink visits.
func (s *Scraper) returnToFeed(ctx context.Context, st *runState) {
	if ctx.Err() != nil {
		return
	}
	if err := s.navigate(ctx, st.target); err != nil {
		s.logger.Warnf("Failed to return to the feed: %v", err)
		return
	}
	if st.offset > 0 {
		if err := browser.ScrollTo(ctx, s.driver, st.offset); err != nil {
			s.logger.Debugf("Failed to restore scroll position: %v", err)
		}
	}
}

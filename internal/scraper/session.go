package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"

	"fbscrape/internal/auth"
	"fbscrape/internal/browser"
)

// withRetry runs fn up to retry_attempts times with exponential backoff
// starting at retry_delay.
func (s *Scraper) withRetry(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	base := s.cfg.RetryDelay
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(s.cfg.RetryAttempts-1), retry.NewExponential(base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.Warnf("%s failed (attempt %d/%d): %v", what, attempt, s.cfg.RetryAttempts, err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *Scraper) navigate(ctx context.Context, u string) error {
	err := s.withRetry(ctx, "navigate to "+u, func(ctx context.Context) error {
		return s.driver.Navigate(ctx, u)
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", u, err)
	}
	if err := s.driver.WaitVisible(ctx, "body", s.cfg.PageLoadTimeout); err != nil {
		s.logger.Debugf("Page body not visible after load: %v", err)
	}
	return nil
}

// snapshot reads the current page into a goquery document.
func (s *Scraper) snapshot(ctx context.Context) (*goquery.Document, error) {
	var html string
	err := s.withRetry(ctx, "page snapshot", func(ctx context.Context) error {
		h, err := s.driver.HTML(ctx)
		html = h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

// openTarget installs the session cookies and opens the target page. A
// redirect to the login or checkpoint flow fails with ErrNotLoggedIn unless
// an operator prompt is configured with wait_login.
func (s *Scraper) openTarget(ctx context.Context, target string) error {
	cookies, err := auth.LoadCookies(s.cfg.CookiesFile)
	switch {
	case errors.Is(err, auth.ErrNoCookies):
		s.logger.Warnf("No cookies in %s, continuing without a session", s.cfg.CookiesFile)
	case err != nil:
		s.logger.Warnf("Failed to load cookies, continuing without a session: %v", err)
	default:
		if warnings, err := auth.ValidateCookieFormat(cookies); err != nil {
			s.logger.Warnf("Cookie file looks incomplete: %v", err)
		} else {
			for _, w := range warnings {
				s.logger.Warn(w)
			}
		}
		if err := s.navigate(ctx, s.baseURL); err != nil {
			return err
		}
		if err := s.driver.SetCookies(ctx, cookies); err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
		s.logger.Infof("Loaded %d cookies from %s", len(cookies), s.cfg.CookiesFile)
	}

	if err := s.navigate(ctx, target); err != nil {
		return err
	}
	if err := browser.Sleep(ctx, s.cfg.ScrollDelay); err != nil {
		return err
	}

	current, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current url: %w", err)
	}
	if !isLoginURL(current) {
		return nil
	}

	if !s.cfg.WaitLogin || s.prompt == nil {
		return fmt.Errorf("%w: redirected to %s", ErrNotLoggedIn, current)
	}

	s.logger.Warn("Facebook asks for a login. Log in in the browser window, then confirm in the terminal")
	if err := s.prompt(ctx); err != nil {
		return fmt.Errorf("login prompt: %w", err)
	}
	if err := s.navigate(ctx, target); err != nil {
		return err
	}
	current, err = s.driver.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current url: %w", err)
	}
	if isLoginURL(current) {
		return fmt.Errorf("%w: still on %s after manual login", ErrNotLoggedIn, current)
	}
	return nil
}

// saveSessionCookies writes the browser cookies back so refreshed tokens
// survive to the next run.
func (s *Scraper) saveSessionCookies(ctx context.Context) {
	cookies, err := s.driver.Cookies(ctx)
	if err != nil {
		s.logger.Debugf("Failed to read browser cookies: %v", err)
		return
	}
	hasSession := false
	for _, c := range cookies {
		if c.Name == "c_user" {
			hasSession = true
			break
		}
	}
	if !hasSession {
		return
	}
	if err := auth.SaveCookies(s.cfg.CookiesFile, cookies); err != nil {
		s.logger.Warnf("Failed to save cookies: %v", err)
		return
	}
	s.logger.Debugf("Saved %d cookies to %s", len(cookies), s.cfg.CookiesFile)
}

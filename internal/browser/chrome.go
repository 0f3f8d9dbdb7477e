package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fbscrape/internal/auth"
)

// ChromeDriver controls one Chrome tab over the DevTools protocol.
type ChromeDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *logrus.Logger
}

func chromeOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		// Keeps navigator.webdriver false.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(o.UserAgent),
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("lang", "en-US"),
	)
	if o.Headless || o.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(o.UserDataDir))
	}
	return opts
}

// NewChrome launches Chrome and opens a tab. The browser lives until Close
// or until ctx is cancelled.
func NewChrome(ctx context.Context, opts Options, logger *logrus.Logger) (*ChromeDriver, error) {
	opts.setDefaults()
	if opts.ExecPath == "" && chromePath() == "" {
		return nil, fmt.Errorf("%w: none of %v on PATH", ErrNoBrowser, chromeBinaries)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromeOptions(opts)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Debugf))

	// The first Run starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	logger.Infof("Chrome started (headless=%v)", opts.Headless)

	return &ChromeDriver{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		timeout:     opts.PageLoadTimeout,
		limiter:     opts.limiter(),
		logger:      logger,
	}, nil
}

// run executes actions on the tab, bounded by the page load timeout and by
// the caller's ctx.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	d.logger.Debugf("Navigating to %s", url)
	if err := d.run(ctx, d.timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, d.timeout, chromedp.Location(&url))
	return url, err
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, d.timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Eval(ctx context.Context, script string, out interface{}) error {
	return d.run(ctx, d.timeout, chromedp.Evaluate(script, out))
}

func (d *ChromeDriver) SetCookies(ctx context.Context, cookies []auth.Cookie) error {
	return d.run(ctx, d.timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			set := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(network.CookieSameSite(c.SameSite))
			if exp := c.ExpiresAt(); !exp.IsZero() {
				ts := cdp.TimeSinceEpoch(exp)
				set = set.WithExpires(&ts)
			}
			if err := set.Do(ctx); err != nil {
				d.logger.Warnf("Failed to set cookie %s: %v", c.Name, err)
			}
		}
		return nil
	}))
}

func (d *ChromeDriver) Cookies(ctx context.Context) ([]auth.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, d.timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	out := make([]auth.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, auth.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return auth.Normalize(out), nil
}

func (d *ChromeDriver) Back(ctx context.Context) error {
	return d.run(ctx, d.timeout, chromedp.NavigateBack())
}

func (d *ChromeDriver) Close() error {
	d.cancel()
	d.allocCancel()
	return nil
}

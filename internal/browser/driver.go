// Package browser drives a real browser for the scraper. Two engines are
// supported: Chrome over the DevTools protocol (chromedp) and any
// WebDriver-speaking browser through Selenium.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fbscrape/internal/auth"
)

// ErrNoBrowser is returned when no usable browser or driver binary is found.
var ErrNoBrowser = errors.New("no suitable browser found for automation")

const (
	EngineChromedp = "chromedp"
	EngineSelenium = "selenium"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Driver is the small set of browser operations the scraper needs. One
// Driver is used by one goroutine at a time.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Eval runs a JavaScript expression and decodes its value into out,
	// which may be nil.
	Eval(ctx context.Context, script string, out interface{}) error
	SetCookies(ctx context.Context, cookies []auth.Cookie) error
	Cookies(ctx context.Context) ([]auth.Cookie, error)
	Back(ctx context.Context) error
	Close() error
}

type Options struct {
	Engine          string
	Headless        bool
	UserAgent       string
	WindowWidth     int
	WindowHeight    int
	PageLoadTimeout time.Duration
	// NavigationsPerMinute caps page loads; 0 disables the limit.
	NavigationsPerMinute int
	ExecPath             string
	UserDataDir          string
	DisableGPU           bool

	SeleniumBrowser string
	SeleniumPort    int
	DriverPath      string
}

func (o *Options) setDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.WindowWidth == 0 || o.WindowHeight == 0 {
		o.WindowWidth, o.WindowHeight = 1920, 1080
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 30 * time.Second
	}
	if o.SeleniumBrowser == "" {
		o.SeleniumBrowser = "firefox"
	}
	if o.SeleniumPort == 0 {
		o.SeleniumPort = 4444
	}
}

func (o Options) limiter() *rate.Limiter {
	if o.NavigationsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(o.NavigationsPerMinute)), 1)
}

// New starts the configured engine. With no engine set, Chrome is preferred
// and Selenium is the fallback.
func New(ctx context.Context, opts Options, logger *logrus.Logger) (Driver, error) {
	opts.setDefaults()

	switch opts.Engine {
	case EngineChromedp:
		return NewChrome(ctx, opts, logger)
	case EngineSelenium:
		return NewSelenium(opts, logger)
	case "":
		if opts.ExecPath != "" || chromePath() != "" {
			return NewChrome(ctx, opts, logger)
		}
		logger.Warn("Chrome not found, falling back to Selenium")
		return NewSelenium(opts, logger)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}

var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

func chromePath() string {
	return firstOnPath(chromeBinaries...)
}

func firstOnPath(names ...string) string {
	for _, name := range names {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

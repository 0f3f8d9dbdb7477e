package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"
	"golang.org/x/time/rate"

	"fbscrape/internal/auth"
)

const cookieBaseURL = "https://www.facebook.com"

// SeleniumDriver talks to geckodriver or chromedriver over WebDriver.
// WebDriver calls cannot be interrupted, so ctx is checked between them.
type SeleniumDriver struct {
	driver  selenium.WebDriver
	service *selenium.Service
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func seleniumCapabilities(o Options) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": o.SeleniumBrowser}

	if o.SeleniumBrowser == "chrome" {
		args := []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-notifications",
			"--disable-blink-features=AutomationControlled",
			fmt.Sprintf("--window-size=%d,%d", o.WindowWidth, o.WindowHeight),
			"--user-agent=" + o.UserAgent,
		}
		if o.Headless {
			args = append(args, "--headless=new", "--disable-gpu")
		}
		caps.AddChrome(chrome.Capabilities{Args: args, Path: o.ExecPath})
		return caps
	}

	args := []string{
		fmt.Sprintf("--width=%d", o.WindowWidth),
		fmt.Sprintf("--height=%d", o.WindowHeight),
	}
	if o.Headless {
		args = append(args, "--headless")
	}
	caps.AddFirefox(firefox.Capabilities{
		Binary: o.ExecPath,
		Args:   args,
		Prefs: map[string]interface{}{
			"general.useragent.override":   o.UserAgent,
			"dom.webdriver.enabled":        false,
			"useAutomationExtension":       false,
			"dom.webnotifications.enabled": false,
		},
	})
	return caps
}

// NewSelenium starts the WebDriver service for the configured browser and
// opens a session.
func NewSelenium(opts Options, logger *logrus.Logger) (*SeleniumDriver, error) {
	opts.setDefaults()

	driverPath := opts.DriverPath
	if driverPath == "" {
		if opts.SeleniumBrowser == "chrome" {
			driverPath = firstOnPath("chromedriver")
		} else {
			driverPath = firstOnPath("geckodriver")
		}
	}
	if driverPath == "" {
		return nil, fmt.Errorf("%w: no WebDriver binary for %s on PATH", ErrNoBrowser, opts.SeleniumBrowser)
	}

	selenium.SetDebug(false)
	var (
		service *selenium.Service
		err     error
		remote  = fmt.Sprintf("http://localhost:%d", opts.SeleniumPort)
	)
	if opts.SeleniumBrowser == "chrome" {
		service, err = selenium.NewChromeDriverService(driverPath, opts.SeleniumPort)
		remote += "/wd/hub"
	} else {
		service, err = selenium.NewGeckoDriverService(driverPath, opts.SeleniumPort)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start %s service: %w", driverPath, err)
	}

	driver, err := selenium.NewRemote(seleniumCapabilities(opts), remote)
	if err != nil {
		service.Stop()
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	if err := driver.SetPageLoadTimeout(opts.PageLoadTimeout); err != nil {
		logger.Warnf("Failed to set page load timeout: %v", err)
	}
	logger.Infof("Selenium session started (%s, headless=%v)", opts.SeleniumBrowser, opts.Headless)

	return &SeleniumDriver{
		driver:  driver,
		service: service,
		limiter: opts.limiter(),
		logger:  logger,
	}, nil
}

func (d *SeleniumDriver) Navigate(ctx context.Context, url string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	d.logger.Debugf("Navigating to %s", url)
	if err := d.driver.Get(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *SeleniumDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.driver.CurrentURL()
}

func (d *SeleniumDriver) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := d.driver.PageSource()
	if err != nil {
		return "", fmt.Errorf("failed to get page source: %w", err)
	}
	return src, nil
}

func (d *SeleniumDriver) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return d.driver.WaitWithTimeout(func(wd selenium.WebDriver) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		el, err := wd.FindElement(selenium.ByCSSSelector, sel)
		if err != nil {
			return false, nil
		}
		shown, err := el.IsDisplayed()
		return err == nil && shown, nil
	}, timeout)
}

// Eval wraps the expression in a return statement, as WebDriver executes
// function bodies, and decodes the result through JSON.
func (d *SeleniumDriver) Eval(ctx context.Context, script string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := d.driver.ExecuteScript("return ("+strings.TrimSuffix(strings.TrimSpace(script), ";")+");", nil)
	if err != nil {
		return fmt.Errorf("failed to execute script: %w", err)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode script result: %w", err)
	}
	return json.Unmarshal(data, out)
}

// SetCookies visits the site first, since WebDriver only accepts cookies
// for the current domain.
func (d *SeleniumDriver) SetCookies(ctx context.Context, cookies []auth.Cookie) error {
	current, _ := d.driver.CurrentURL()
	if !strings.Contains(current, "facebook.com") {
		if err := d.Navigate(ctx, cookieBaseURL); err != nil {
			return err
		}
	}

	for _, c := range cookies {
		if err := ctx.Err(); err != nil {
			return err
		}
		domain := c.Domain
		if !strings.HasPrefix(domain, ".") && domain != "facebook.com" {
			domain = "." + domain
		}
		sc := &selenium.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domain,
			Path:   c.Path,
			Secure: c.Secure,
		}
		if c.Expires > 0 {
			sc.Expiry = uint(c.Expires)
		}
		if err := d.driver.AddCookie(sc); err != nil {
			d.logger.Warnf("Failed to set cookie %s: %v", c.Name, err)
			continue
		}
		d.logger.Debugf("Set cookie %s for domain %s", c.Name, domain)
	}
	return nil
}

func (d *SeleniumDriver) Cookies(ctx context.Context) ([]auth.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cookies, err := d.driver.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	out := make([]auth.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, auth.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Secure:  c.Secure,
			Expires: float64(c.Expiry),
		})
	}
	return auth.Normalize(out), nil
}

func (d *SeleniumDriver) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.driver.Back()
}

func (d *SeleniumDriver) Close() error {
	var err error
	if d.driver != nil {
		err = d.driver.Quit()
	}
	if d.service != nil {
		if stopErr := d.service.Stop(); err == nil {
			err = stopErr
		}
	}
	return err
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAuthFailed is wrapped by every ValidateAuth failure that means the
// session itself is not usable.
var ErrAuthFailed = errors.New("authentication failed")

const defaultBaseURL = "https://www.facebook.com"

// AuthManager holds a cookie session and checks it against the site over
// plain HTTP, without starting a browser.
type AuthManager struct {
	client      *http.Client
	cookieJar   *cookiejar.Jar
	cookiesFile string
	userAgent   string
	baseURL     string
	cookies     []Cookie
	logger      *logrus.Logger
}

func NewAuthManager(cookiesFile, userAgent string, logger *logrus.Logger) (*AuthManager, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	return &AuthManager{
		client:      client,
		cookieJar:   jar,
		cookiesFile: cookiesFile,
		userAgent:   userAgent,
		baseURL:     defaultBaseURL,
		logger:      logger,
	}, nil
}

// SetBaseURL points validation at another host.
func (am *AuthManager) SetBaseURL(base string) {
	am.baseURL = strings.TrimRight(base, "/")
}

func (am *AuthManager) LoadCookies() error {
	am.logger.Infof("Loading cookies from %s", am.cookiesFile)

	cookies, err := LoadCookies(am.cookiesFile)
	if err != nil {
		return err
	}

	warnings, err := ValidateCookieFormat(cookies)
	if err != nil {
		return fmt.Errorf("invalid cookies: %w", err)
	}
	for _, w := range warnings {
		am.logger.Warn(w)
	}

	base, err := url.Parse(am.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}

	// Host-only cookies for the base URL; the jar rejects a .facebook.com
	// domain for any other host.
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure && base.Scheme == "https",
			HttpOnly: c.HTTPOnly,
		}
		if exp := c.ExpiresAt(); !exp.IsZero() {
			hc.Expires = exp
		}
		httpCookies = append(httpCookies, hc)
	}
	am.cookieJar.SetCookies(base, httpCookies)
	am.cookies = cookies

	am.logger.Infof("Loaded %d cookies for Facebook", len(httpCookies))
	return nil
}

// Cookies returns the cookies read by LoadCookies.
func (am *AuthManager) Cookies() []Cookie {
	return am.cookies
}

// ValidateAuth requests the notifications page with the loaded session and
// fails when the site answers with a login, checkpoint or error page.
func (am *AuthManager) ValidateAuth(ctx context.Context) error {
	am.logger.Info("Validating Facebook authentication...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, am.baseURL+"/notifications", nil)
	if err != nil {
		return fmt.Errorf("failed to create validation request: %w", err)
	}
	req.Header.Set("User-Agent", am.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	resp, err := am.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to validate authentication: %w", err)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	am.logger.Infof("Validation response: Status=%d, URL=%s", resp.StatusCode, finalURL)

	switch {
	case strings.Contains(finalURL, "/login"):
		return fmt.Errorf("%w: redirected to login page", ErrAuthFailed)
	case strings.Contains(finalURL, "/checkpoint"):
		return fmt.Errorf("%w: account requires checkpoint verification", ErrAuthFailed)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return fmt.Errorf("%w: bad request (400) - cookies may be expired or invalid", ErrAuthFailed)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: unauthorized (401) - invalid credentials", ErrAuthFailed)
	case http.StatusForbidden:
		return fmt.Errorf("%w: forbidden (403) - account may be restricted", ErrAuthFailed)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited (429) - too many requests")
	default:
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		am.logger.Warnf("Failed to read response body: %v", err)
		return nil
	}
	page := string(body)
	am.logger.Debugf("Response body length: %d", len(page))

	if strings.Contains(page, `"USER_ID"`) || strings.Contains(page, `"viewer"`) || strings.Contains(page, "fb-notifications") {
		am.logger.Info("Authentication validated successfully")
		return nil
	}
	if strings.Contains(page, `id="login_form"`) || strings.Contains(page, `name="login"`) {
		return fmt.Errorf("%w: login form served", ErrAuthFailed)
	}
	if strings.Contains(strings.ToLower(page), "captcha") {
		return fmt.Errorf("%w: captcha challenge required", ErrAuthFailed)
	}

	am.logger.Info("Authentication validated successfully")
	return nil
}

func (am *AuthManager) GetAuthenticatedClient() *http.Client {
	return am.client
}

// SaveCookies writes the cookies held by the manager back to its file.
func (am *AuthManager) SaveCookies() error {
	if len(am.cookies) == 0 {
		return ErrNoCookies
	}
	if err := SaveCookies(am.cookiesFile, am.cookies); err != nil {
		return err
	}
	am.logger.Infof("Saved %d cookies to %s", len(am.cookies), am.cookiesFile)
	return nil
}

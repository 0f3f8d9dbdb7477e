package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoCookies is returned when the cookie file is missing or empty.
var ErrNoCookies = errors.New("no cookies found")

// Cookie is one browser cookie as written by browser export extensions.
// Expires is in unix seconds, 0 for session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// UnmarshalJSON accepts the expiry under "expirationDate" (browser
// exports), "expires" (number or RFC3339 string) and "expiry" (WebDriver).
func (c *Cookie) UnmarshalJSON(data []byte) error {
	type plain Cookie
	var raw struct {
		plain
		ExpiresAny json.RawMessage `json:"expires"`
		Expiry     *float64        `json:"expiry"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Cookie(raw.plain)

	if c.Expires == 0 && raw.Expiry != nil {
		c.Expires = *raw.Expiry
	}
	if c.Expires == 0 && len(raw.ExpiresAny) > 0 {
		var num float64
		var str string
		switch {
		case json.Unmarshal(raw.ExpiresAny, &num) == nil:
			c.Expires = num
		case json.Unmarshal(raw.ExpiresAny, &str) == nil && str != "":
			if t, err := time.Parse(time.RFC3339, str); err == nil {
				c.Expires = float64(t.Unix())
			}
		}
	}
	if c.Expires < 0 {
		c.Expires = 0
	}
	return nil
}

// ExpiresAt returns the expiry as a time, zero for session cookies.
func (c Cookie) ExpiresAt() time.Time {
	if c.Expires <= 0 {
		return time.Time{}
	}
	sec := int64(c.Expires)
	return time.Unix(sec, int64((c.Expires-float64(sec))*1e9)).UTC()
}

type cookieFile struct {
	Timestamp float64  `json:"timestamp"`
	Cookies   []Cookie `json:"cookies"`
}

// LoadCookies reads a cookie file in any of the supported layouts: a bare
// array, {"cookies": [...]} or the legacy {"facebook.com": [...]} map.
// The result is normalized with Normalize.
func LoadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoCookies, path)
		}
		return nil, fmt.Errorf("failed to read cookies file: %w", err)
	}

	cookies, err := decodeCookies(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cookies file %s: %w", path, err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoCookies, path)
	}
	return Normalize(cookies), nil
}

func decodeCookies(data []byte) ([]Cookie, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var list []Cookie
		err := json.Unmarshal(data, &list)
		return list, err
	}

	var wrapped cookieFile
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Cookies) > 0 {
		return wrapped.Cookies, nil
	}

	var byDomain map[string]json.RawMessage
	if err := json.Unmarshal(data, &byDomain); err != nil {
		return nil, err
	}
	var out []Cookie
	for domain, raw := range byDomain {
		if !strings.Contains(domain, "facebook") {
			continue
		}
		var list []Cookie
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("cookies for %s: %w", domain, err)
		}
		out = append(out, list...)
	}
	return out, nil
}

// Normalize fixes the attributes browsers refuse: unknown SameSite values
// become Lax, and missing domain and path get Facebook defaults.
func Normalize(cookies []Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		c.SameSite = normalizeSameSite(c.SameSite)
		if c.Domain == "" {
			c.Domain = ".facebook.com"
		}
		if c.Path == "" {
			c.Path = "/"
		}
		out = append(out, c)
	}
	return out
}

func normalizeSameSite(v string) string {
	switch strings.ToLower(v) {
	case "strict":
		return "Strict"
	case "none", "no_restriction":
		return "None"
	default:
		return "Lax"
	}
}

// SaveCookies writes cookies as {"timestamp": ..., "cookies": [...]}.
func SaveCookies(path string, cookies []Cookie) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create cookies directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cookieFile{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Cookies:   cookies,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookies file: %w", err)
	}
	return nil
}

// ValidateCookieFormat checks that the session cookies are present. A
// missing datr cookie is reported as a warning only.
func ValidateCookieFormat(cookies []Cookie) (warnings []string, err error) {
	byName := make(map[string]Cookie, len(cookies))
	for _, c := range cookies {
		byName[c.Name] = c
	}

	for _, required := range []string{"c_user", "xs"} {
		c, ok := byName[required]
		if !ok {
			return nil, fmt.Errorf("missing required cookie: %s", required)
		}
		if c.Value == "" {
			return nil, fmt.Errorf("empty value for required cookie: %s", required)
		}
	}
	if !isNumeric(byName["c_user"].Value) {
		return nil, fmt.Errorf("c_user cookie should be numeric, got: %s", byName["c_user"].Value)
	}

	if _, ok := byName["datr"]; !ok {
		warnings = append(warnings, "datr cookie is missing; Facebook may ask for a checkpoint")
	}
	now := time.Now()
	for _, name := range []string{"c_user", "xs"} {
		if exp := byName[name].ExpiresAt(); !exp.IsZero() && exp.Before(now) {
			warnings = append(warnings, fmt.Sprintf("%s cookie expired at %s", name, exp.Format(time.RFC3339)))
		}
	}
	return warnings, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// ExtractCookiesInstructions explains how to export a session by hand.
func ExtractCookiesInstructions() string {
	return `
To extract cookies from your browser:

1. Open Facebook in your browser and log in
2. Install a cookie export extension (for example "Cookie-Editor")
   or open Developer Tools (F12) -> Application -> Cookies
3. Export the cookies for https://www.facebook.com as JSON
4. Save the export as cookies.json (or the path set in scraper.cookies_file)

Required cookies:
- c_user: Your user ID
- xs: Session token

Recommended:
- datr: Device authentication token
- sb: Secure browsing token
- fr: Facebook request token

Alternatively run the scraper with -wait-login, log in in the opened
browser window and the session is written back to the cookies file.`
}

package extract

import (
	"encoding/json"
	"hash/fnv"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const BaseURL = "https://www.facebook.com"

var (
	postIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`story_fbid=(\w+)`),
		regexp.MustCompile(`/posts/([\w.]+)`),
		regexp.MustCompile(`/permalink/(\d+)`),
		regexp.MustCompile(`[?&]fbid=(\d+)`),
		regexp.MustCompile(`/videos/(\d+)`),
		regexp.MustCompile(`/photos/[^/]+/(\d+)`),
		regexp.MustCompile(`/(\d{6,})/?$`),
	}
	imageSizeRe = regexp.MustCompile(`([?&])s=\d+x\d+&?`)
	hashtagRe   = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
)

// Query parameters that identify content and survive normalization.
var keepParams = map[string]bool{"story_fbid": true, "id": true, "fbid": true, "v": true, "set": true}

var facebookHosts = []string{"facebook.com", "fb.com", "fb.me", "fb.watch", "instagram.com", "fbcdn.net", "messenger.com"}

// Absolute resolves a site-relative href against BaseURL.
func Absolute(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "", strings.HasPrefix(href, "#"), strings.HasPrefix(href, "javascript:"):
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return BaseURL + href
	}
	return href
}

// NormalizeURL makes href absolute, unwraps l.php redirects and drops
// tracking parameters and fragments.
func NormalizeURL(href string) string {
	abs := Absolute(href)
	if abs == "" {
		return ""
	}
	if target, ok := DecodeRedirect(abs); ok {
		return target
	}
	u, err := url.Parse(abs)
	if err != nil {
		return abs
	}
	u.Fragment = ""
	q := u.Query()
	for k := range q {
		if !keepParams[k] {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ProfileURL strips the query from an author link, keeping the id of
// profile.php links.
func ProfileURL(href string) string {
	abs := Absolute(href)
	if abs == "" {
		return ""
	}
	u, err := url.Parse(abs)
	if err != nil {
		return abs
	}
	id := u.Query().Get("id")
	u.RawQuery = ""
	u.Fragment = ""
	if strings.HasSuffix(u.Path, "profile.php") && id != "" {
		u.RawQuery = "id=" + url.QueryEscape(id)
	}
	return u.String()
}

// DecodeRedirect unwraps l.facebook.com/l.php?u=<target> links.
func DecodeRedirect(href string) (string, bool) {
	u, err := url.Parse(Absolute(href))
	if err != nil || !IsFacebookHost(u.Host) || !strings.HasSuffix(u.Path, "/l.php") {
		return "", false
	}
	target := u.Query().Get("u")
	if target == "" {
		return "", false
	}
	return target, true
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func IsFacebookHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range facebookHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// IsPostURL reports whether href points at a single post.
func IsPostURL(href string) bool {
	for _, marker := range []string{"/posts/", "/permalink/", "story_fbid", "story.php", "/photo.php", "/photos/", "/videos/", "fbid="} {
		if strings.Contains(href, marker) {
			return true
		}
	}
	return false
}

// PostIDFromURL extracts the platform post ID from a post link.
func PostIDFromURL(href string) string {
	for _, re := range postIDPatterns {
		if m := re.FindStringSubmatch(href); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// postIDFromDataFt reads the mobile site's data-ft JSON attribute.
func postIDFromDataFt(s *goquery.Selection) string {
	raw, ok := s.Attr("data-ft")
	if !ok {
		return ""
	}
	var ft map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &ft); err != nil {
		return ""
	}
	for _, key := range []string{"top_level_post_id", "mf_story_key"} {
		switch v := ft[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// StableID hashes parts into a short deterministic identifier.
func StableID(prefix string, parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return prefix + strconv.FormatUint(h.Sum64(), 16)
}

// CleanImageURL drops the resize parameter so the original size is kept.
func CleanImageURL(src string) string {
	out := imageSizeRe.ReplaceAllString(src, "$1")
	return strings.TrimRight(out, "?&")
}

func IsImageURL(src string) bool {
	if src == "" || strings.HasPrefix(src, "data:") {
		return false
	}
	lower := strings.ToLower(src)
	if strings.Contains(lower, "/rsrc.php") || strings.Contains(lower, "emoji.php") || strings.Contains(lower, "/images/emoji") {
		return false
	}
	if strings.Contains(lower, "scontent") || strings.Contains(lower, "fbcdn.net") {
		return true
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// Hashtags returns the distinct hashtags of text in order of appearance.
func Hashtags(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tag := range hashtagRe.FindAllString(text, -1) {
		out = appendUnique(out, seen, tag)
	}
	return out
}

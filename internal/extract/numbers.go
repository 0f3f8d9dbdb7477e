package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	suffixCountRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(k|m|b|тыс|млн)(?:[^a-zа-я]|$)`)
	plainCountRe  = regexp.MustCompile(`\d{1,3}(?:[,\s\x{00a0}]\d{3})+|\d+`)
	hasDigitRe    = regexp.MustCompile(`\d`)
)

var multipliers = map[string]float64{
	"k": 1e3, "тыс": 1e3,
	"m": 1e6, "млн": 1e6,
	"b": 1e9,
}

// ParseCount turns engagement text like "1.2K", "3,456 comments" or
// "2 млн" into an integer. Unparseable text yields 0.
func ParseCount(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0
	}

	if m := suffixCountRe.FindStringSubmatch(text); len(m) == 3 {
		num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil {
			return int(math.Round(num * multipliers[m[2]]))
		}
	}

	if m := plainCountRe.FindString(text); m != "" {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		if n, err := strconv.Atoi(digits); err == nil {
			return n
		}
	}
	return 0
}

// CountNear returns the count written right before keyword, as in
// "12 comments" or "1.5K shares". Returns 0 when the keyword has no count.
func CountNear(text, keyword string) int {
	re := regexp.MustCompile(`(?i)(\d[\d.,]*\s*(?:k|m|b)?)\s*` + regexp.QuoteMeta(keyword))
	if m := re.FindStringSubmatch(text); len(m) == 2 {
		return ParseCount(m[1])
	}
	return 0
}

func hasDigit(s string) bool {
	return hasDigitRe.MatchString(s)
}

var (
	reactionAliases = map[string]string{"liked": "like", "laugh": "haha", "cry": "sad"}
	countThenName   = regexp.MustCompile(`(\d[\d.,]*\s*[kmb]?)\s*(?:people\s*)?(?:reacted\s*with\s*)?(liked|like|love|care|haha|laugh|wow|sad|cry|angry)`)
	nameThenCount   = regexp.MustCompile(`(like|love|care|haha|wow|sad|angry)\s*[:\-]\s*(\d[\d.,]*\s*[kmb]?)`)
)

// ParseReactions reads per-type reaction counts out of an aria-label such
// as "Love: 3 people" or "12 people reacted with like". When no type can be
// identified the first count is returned under "total".
func ParseReactions(label string) map[string]int {
	label = strings.ToLower(label)
	out := make(map[string]int)
	for _, m := range nameThenCount.FindAllStringSubmatch(label, -1) {
		out[m[1]] = ParseCount(m[2])
	}
	if len(out) == 0 {
		for _, m := range countThenName.FindAllStringSubmatch(label, -1) {
			name := m[2]
			if alias, ok := reactionAliases[name]; ok {
				name = alias
			}
			out[name] = ParseCount(m[1])
		}
	}
	if len(out) == 0 && hasDigit(label) {
		out["total"] = ParseCount(label)
	}
	return out
}

func mergeReactions(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		if v > dst[k] {
			dst[k] = v
		}
	}
	return dst
}

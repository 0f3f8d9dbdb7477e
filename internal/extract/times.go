package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeRe = regexp.MustCompile(`(?:^|[^\p{L}\d])(\d+\s*|an?\s+)(seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|wks?|w|months?|mos?|years?|yrs?|y|сек|мин|ч|дн|нед|мес|г)(?:[^\p{L}]|$)`)
	unixRe     = regexp.MustCompile(`^\d{9,11}$`)
)

var unitDurations = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second, "сек": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute, "мин": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour, "ч": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour, "дн": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "wk": 7 * 24 * time.Hour, "wks": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour, "нед": 7 * 24 * time.Hour,
	"mo": 30 * 24 * time.Hour, "mos": 30 * 24 * time.Hour, "month": 30 * 24 * time.Hour, "months": 30 * 24 * time.Hour, "мес": 30 * 24 * time.Hour,
	"y": 365 * 24 * time.Hour, "yr": 365 * 24 * time.Hour, "yrs": 365 * 24 * time.Hour, "year": 365 * 24 * time.Hour, "years": 365 * 24 * time.Hour, "г": 365 * 24 * time.Hour,
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Monday, January 2, 2006 at 3:04 PM",
	"Monday, January 2, 2006 at 15:04",
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006 at 15:04",
	"January 2, 2006",
	"2 January 2006 at 15:04",
	"2 January 2006",
	"Jan 2, 2006",
}

var yearlessLayouts = []string{
	"January 2 at 3:04 PM",
	"January 2 at 15:04",
	"2 January at 15:04",
	"January 2",
	"2 January",
}

// ParseTime resolves the timestamp strings the site renders ("5h",
// "3 days ago", "Yesterday at 10:15", "March 3 at 9:00 PM", unix seconds)
// against now. ok is false when the text is not recognisable.
func ParseTime(text string, now time.Time) (t time.Time, ok bool) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return time.Time{}, false
	}

	if unixRe.MatchString(raw) {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return time.Unix(sec, 0).UTC(), true
		}
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return t, true
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			t = t.AddDate(now.Year(), 0, 0)
			if t.After(now) {
				t = t.AddDate(-1, 0, 0)
			}
			return t, true
		}
	}

	lower := strings.ToLower(raw)
	switch {
	case lower == "now" || lower == "just now" || strings.HasPrefix(lower, "только что"):
		return now, true
	case strings.HasPrefix(lower, "yesterday") || strings.HasPrefix(lower, "вчера"):
		return now.AddDate(0, 0, -1), true
	}

	if m := relativeRe.FindStringSubmatch(lower); len(m) == 3 {
		n := 1
		if num := strings.TrimSpace(m[1]); num != "a" && num != "an" {
			v, err := strconv.Atoi(num)
			if err != nil {
				return time.Time{}, false
			}
			n = v
		}
		if d, ok := unitDurations[m[2]]; ok {
			return now.Add(-time.Duration(n) * d), true
		}
	}
	return time.Time{}, false
}

// LooksLikeTime is true for short strings ParseTime understands.
func LooksLikeTime(text string) bool {
	if len([]rune(text)) > 60 {
		return false
	}
	_, ok := ParseTime(text, time.Now())
	return ok
}

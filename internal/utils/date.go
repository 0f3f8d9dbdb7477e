package utils

import (
	"time"
)

func GetDateDaysAgo(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// IsWithinDays reports whether postTime falls within days before now.
func IsWithinDays(now, postTime time.Time, days int) bool {
	return postTime.After(GetDateDaysAgo(now, days))
}

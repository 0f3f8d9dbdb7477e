package scraper

import (
	"strings"
	"time"

	"fbscrape/internal/utils"
	"fbscrape/pkg/types"
)

// ApplyFilter applies the filter to a single post. Posts without a parsed
// date pass the date checks.
func ApplyFilter(post types.Post, filter *types.PostFilter, now time.Time) bool {
	if filter.MinLikes > 0 && post.Engagement.Likes < filter.MinLikes {
		return false
	}

	if filter.MaxLikes > 0 && post.Engagement.Likes > filter.MaxLikes {
		return false
	}

	if filter.MinComments > 0 && post.Engagement.Comments < filter.MinComments {
		return false
	}

	if filter.MinShares > 0 && post.Engagement.Shares < filter.MinShares {
		return false
	}

	if !passesTime(post, filter, now) {
		return false
	}

	if len(filter.Keywords) > 0 && !containsAnyKeyword(post.Content, filter.Keywords) {
		return false
	}

	if len(filter.ExcludeKeywords) > 0 {
		contentLower := strings.ToLower(post.Content)
		for _, keyword := range filter.ExcludeKeywords {
			if strings.Contains(contentLower, strings.ToLower(keyword)) {
				return false
			}
		}
	}

	if len(filter.AuthorNames) > 0 && !containsFold(filter.AuthorNames, post.Author.Name) {
		return false
	}

	if len(filter.PostTypes) > 0 && !containsFold(filter.PostTypes, post.PostType) {
		return false
	}

	return true
}

func passesTime(post types.Post, filter *types.PostFilter, now time.Time) bool {
	if post.PostedAt == nil {
		return true
	}
	if filter.DaysBack > 0 && !utils.IsWithinDays(now, *post.PostedAt, filter.DaysBack) {
		return false
	}
	if !filter.StartDate.IsZero() && post.PostedAt.Before(filter.StartDate) {
		return false
	}
	if !filter.EndDate.IsZero() && post.PostedAt.After(filter.EndDate) {
		return false
	}
	return true
}

// BatchFilter applies filters to multiple posts and returns statistics
func BatchFilter(posts []types.Post, filter *types.PostFilter, now time.Time) ([]types.Post, types.FilterStats) {
	filtered := make([]types.Post, 0, len(posts))
	stats := types.FilterStats{
		TotalPosts: len(posts),
	}

	for _, post := range posts {
		passedLikes := (filter.MinLikes == 0 || post.Engagement.Likes >= filter.MinLikes) &&
			(filter.MaxLikes == 0 || post.Engagement.Likes <= filter.MaxLikes)
		passedKeywords := len(filter.Keywords) == 0 || containsAnyKeyword(post.Content, filter.Keywords)

		if !passedLikes {
			stats.LikesFiltered++
		}
		if !passesTime(post, filter, now) {
			stats.TimeFiltered++
		}
		if !passedKeywords {
			stats.KeywordFiltered++
		}

		if ApplyFilter(post, filter, now) {
			filtered = append(filtered, post)
		}
	}

	stats.FilteredPosts = len(filtered)
	return filtered, stats
}

func containsAnyKeyword(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}

	contentLower := strings.ToLower(content)
	for _, keyword := range keywords {
		if strings.Contains(contentLower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

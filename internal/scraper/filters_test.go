package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fbscrape/pkg/types"
)

func TestBatchFilter(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	old := now.AddDate(0, 0, -30)

	posts := []types.Post{
		{ID: "1", Content: "Go 1.24 released", PostType: "link", PostedAt: &recent,
			Author: types.Author{Name: "Alice"}, Engagement: types.Engagement{Likes: 50}},
		{ID: "2", Content: "go generics tips", PostType: "text", PostedAt: &old,
			Author: types.Author{Name: "Bob"}, Engagement: types.Engagement{Likes: 80}},
		{ID: "3", Content: "Rust news", PostType: "text",
			Author: types.Author{Name: "alice"}, Engagement: types.Engagement{Likes: 5}},
		{ID: "4", Content: "go SPAM offer", PostType: "text", PostedAt: &recent,
			Author: types.Author{Name: "Alice"}, Engagement: types.Engagement{Likes: 20}},
	}

	filter := &types.PostFilter{
		MinLikes:        10,
		DaysBack:        7,
		Keywords:        []string{"GO"},
		ExcludeKeywords: []string{"spam"},
		AuthorNames:     []string{"ALICE"},
	}

	kept, stats := BatchFilter(posts, filter, now)
	if assert.Len(t, kept, 1) {
		assert.Equal(t, "1", kept[0].ID)
	}
	assert.Equal(t, 4, stats.TotalPosts)
	assert.Equal(t, 1, stats.FilteredPosts)
	assert.Equal(t, 1, stats.LikesFiltered)
	assert.Equal(t, 1, stats.TimeFiltered)
	assert.Equal(t, 1, stats.KeywordFiltered)
}

func TestApplyFilter_PostTypesAndRange(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	post := types.Post{PostType: "photo", PostedAt: &at, Engagement: types.Engagement{Likes: 3, Comments: 1, Shares: 2}}

	assert.True(t, ApplyFilter(post, &types.PostFilter{}, now))
	assert.True(t, ApplyFilter(post, &types.PostFilter{PostTypes: []string{"video", "Photo"}}, now))
	assert.False(t, ApplyFilter(post, &types.PostFilter{PostTypes: []string{"video"}}, now))
	assert.False(t, ApplyFilter(post, &types.PostFilter{MaxLikes: 2}, now))
	assert.False(t, ApplyFilter(post, &types.PostFilter{MinComments: 2}, now))
	assert.False(t, ApplyFilter(post, &types.PostFilter{MinShares: 3}, now))
	assert.False(t, ApplyFilter(post, &types.PostFilter{StartDate: at.Add(time.Hour)}, now))
	assert.False(t, ApplyFilter(post, &types.PostFilter{EndDate: at.Add(-time.Hour)}, now))
	assert.True(t, ApplyFilter(post, &types.PostFilter{StartDate: at.Add(-time.Hour), EndDate: at.Add(time.Hour)}, now))
}

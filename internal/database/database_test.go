package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/internal/config"
	"fbscrape/pkg/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testResult() *types.ScrapeResult {
	scraped := time.Now().UTC().Truncate(time.Second)
	posted := scraped.Add(-2 * time.Hour)
	return &types.ScrapeResult{
		ScraperInfo: types.ScraperInfo{
			RunID:     "run-1",
			TargetURL: "https://www.facebook.com/groups/golang/",
		},
		Posts: []types.Post{
			{
				ID:         "1001",
				PostURL:    "https://www.facebook.com/groups/golang/posts/1001/",
				Author:     types.Author{Name: "Alice Smith", URL: "https://www.facebook.com/alice"},
				Content:    "Hello #golang",
				PostedTime: "2h",
				PostedAt:   &posted,
				ScrapedAt:  scraped,
				Engagement: types.Engagement{Likes: 10, Comments: 2, Shares: 1},
				Reactions:  map[string]int{"Like": 8, "Love": 2},
				PostType:   "text",
				Hashtags:   []string{"#golang"},
				Comments: []types.Comment{
					{
						ID:        "c1",
						Author:    types.Author{Name: "Carol White"},
						Text:      "Great post",
						ScrapedAt: scraped,
						Replies: []types.Comment{
							{ID: "c2", Author: types.Author{Name: "Dan Brown"}, Text: "Agreed", ScrapedAt: scraped},
						},
						RepliesCount: 1,
					},
				},
				FullCommentsExtracted: true,
			},
			{
				ID:         "1002",
				PostURL:    "https://www.facebook.com/groups/golang/posts/1002/",
				Author:     types.Author{Name: "Bob Jones"},
				Content:    "Photo dump",
				ScrapedAt:  scraped,
				Engagement: types.Engagement{Likes: 3},
				PostType:   "photo",
				Images:     []string{"https://scontent.xx.fbcdn.net/a.jpg"},
				Comments:   []types.Comment{},
			},
		},
	}
}

func TestDB_SaveResultAndQuery(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Ping(ctx))

	n, err := db.SaveResult(ctx, testResult())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := db.GetPostsCount(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = db.GetPostsCount(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	posts, err := db.GetPosts(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	first := posts[0]
	assert.Equal(t, "1001", first.ID)
	assert.Equal(t, "golang", first.GroupID)
	assert.Equal(t, "Alice Smith", first.Author.Name)
	assert.Equal(t, 10, first.Engagement.Likes)
	assert.Equal(t, map[string]int{"Like": 8, "Love": 2}, first.Reactions)
	assert.Equal(t, []string{"#golang"}, first.Hashtags)
	assert.True(t, first.FullCommentsExtracted)
	require.NotNil(t, first.PostedAt)
	assert.Equal(t, []string{"https://scontent.xx.fbcdn.net/a.jpg"}, posts[1].Images)
	assert.Nil(t, posts[1].PostedAt)

	page2, err := db.GetPosts(ctx, 2, 1, 0)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "1002", page2[0].ID)

	comments, err := db.GetComments(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Great post", comments[0].Text)
	require.Len(t, comments[0].Replies, 1)
	assert.Equal(t, "Dan Brown", comments[0].Replies[0].Author.Name)

	none, err := db.GetComments(ctx, "1002")
	require.NoError(t, err)
	assert.Empty(t, none)

	byGroup, err := db.GetPostsByGroup(ctx, "golang", 10)
	require.NoError(t, err)
	assert.Len(t, byGroup, 2)
}

func TestDB_SaveResult_Upserts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	result := testResult()
	_, err := db.SaveResult(ctx, result)
	require.NoError(t, err)

	result.Posts[0].Engagement.Likes = 42
	result.Posts[0].Comments[0].Text = "Great post (edited)"
	_, err = db.SaveResult(ctx, result)
	require.NoError(t, err)

	count, err := db.GetPostsCount(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	posts, err := db.GetPosts(ctx, 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, posts[0].Engagement.Likes)

	comments, err := db.GetComments(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Great post (edited)", comments[0].Text)
}

func TestDB_SavePost_RequiresID(t *testing.T) {
	db := openTestDB(t)
	err := db.SavePost(context.Background(), &types.Post{Content: "no id"})
	assert.Error(t, err)
}

func TestDB_StatsAndAuthors(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.SaveResult(ctx, testResult())
	require.NoError(t, err)

	stats, err := db.GetScrapingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPosts)
	assert.Equal(t, 2, stats.TotalComments)
	assert.Equal(t, 2, stats.RecentPosts)
	assert.InDelta(t, 6.5, stats.AvgLikes, 0.001)
	assert.Equal(t, 1, stats.Groups)
	assert.NotEmpty(t, stats.LastScraped)
	assert.Equal(t, map[string]int{"text": 1, "photo": 1}, stats.PostTypes)

	authors, err := db.GetTopAuthors(ctx, 1)
	require.NoError(t, err)
	require.Len(t, authors, 1)
	assert.Equal(t, "Alice Smith", authors[0].Name)
	assert.Equal(t, 1, authors[0].PostCount)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql"}, logrus.New())
	assert.Error(t, err)
}

func TestGroupIDFromURL(t *testing.T) {
	assert.Equal(t, "123", GroupIDFromURL("https://www.facebook.com/groups/123/posts/9"))
	assert.Equal(t, "golang", GroupIDFromURL("https://m.facebook.com/groups/golang"))
	assert.Equal(t, "", GroupIDFromURL("https://www.facebook.com/somepage"))
}

package output

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/pkg/types"
)

func sampleResult() *types.ScrapeResult {
	posts := []types.Post{
		{
			ID:         "1",
			PostURL:    "https://www.facebook.com/groups/1/posts/1/",
			Author:     types.Author{Name: "Zoë Ålander", URL: "https://www.facebook.com/zoe"},
			Content:    "Привет <b>всем</b>, \"quoted\"",
			PostedTime: "5h",
			Engagement: types.Engagement{Likes: 3, Comments: 2},
			PostType:   "text",
			Comments: []types.Comment{
				{ID: "c1", Text: "first", Replies: []types.Comment{{ID: "r1", Text: "reply"}}},
			},
		},
		{ID: "h2", Content: "second", PostType: "text", Comments: []types.Comment{}},
	}
	return &types.ScrapeResult{
		ScraperInfo: types.ScraperInfo{Version: "2.0", RunID: "run", TargetURL: "https://www.facebook.com/groups/1"},
		Posts:       posts,
		Statistics:  types.ComputeStatistics(posts),
	}
}

func TestWriter_SaveAndLoad(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	w := NewWriter(filepath.Join(t.TempDir(), "output"), logger)
	w.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	path, err := w.Save(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "facebook_scrape_20260304_050607_run.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Привет <b>всем</b>")
	assert.Contains(t, string(raw), "Zoë Ålander")
	assert.Contains(t, string(raw), "\n  \"posts\": [")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Posts, 2)
	assert.Equal(t, 2, loaded.Statistics.TotalComments)
	assert.Equal(t, 1, loaded.Statistics.PostsWithComments)
	assert.Equal(t, "reply", loaded.Posts[0].Comments[0].Replies[0].Text)
}

func TestWriter_SaveSameSecond(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	w := NewWriter(t.TempDir(), logger)
	w.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	first := sampleResult()
	first.ScraperInfo.RunID = "3f2a9c1e-7b44-4d0e-9a51-0c6f1e2b8d90"
	second := sampleResult()
	second.ScraperInfo.RunID = "a81d44c0-1f2e-4b7a-8c3d-5e6f7a8b9c0d"

	p1, err := w.Save(first)
	require.NoError(t, err)
	p2, err := w.Save(second)
	require.NoError(t, err)
	p3, err := w.Save(second)
	require.NoError(t, err)

	assert.Equal(t, "facebook_scrape_20260304_050607_3f2a9c1e.json", filepath.Base(p1))
	assert.Equal(t, "facebook_scrape_20260304_050607_a81d44c0.json", filepath.Base(p2))
	assert.Equal(t, "facebook_scrape_20260304_050607_a81d44c0_2.json", filepath.Base(p3))

	loaded, err := Load(p1)
	require.NoError(t, err)
	assert.Equal(t, first.ScraperInfo.RunID, loaded.ScraperInfo.RunID)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[1,"), 0644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse results")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResult().Posts))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Post ID", records[0][0])
	assert.Equal(t, `Привет <b>всем</b>, "quoted"`, records[1][3])
	assert.Equal(t, "5h", records[1][4])
	assert.Equal(t, "2", records[1][9])
	assert.Equal(t, "0", records[2][9])
}

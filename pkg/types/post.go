package types

import (
	"fmt"
	"time"
)

// Author identifies whoever wrote a post or a comment.
type Author struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	IsVerified bool   `json:"is_verified,omitempty"`
}

type Engagement struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
}

// Comment mirrors Post one level down. Replies are comments whose own
// Replies slice is always empty.
type Comment struct {
	ID           string         `json:"id"`
	Author       Author         `json:"author"`
	Text         string         `json:"text"`
	PostedTime   string         `json:"posted_time"`
	ScrapedAt    time.Time      `json:"scraped_at"`
	Likes        int            `json:"likes"`
	RepliesCount int            `json:"replies_count"`
	IsPinned     bool           `json:"is_pinned"`
	IsEdited     bool           `json:"is_edited"`
	Reactions    map[string]int `json:"reactions,omitempty"`
	Replies      []Comment      `json:"replies,omitempty"`
}

// Post is one scraped feed entry. Every field is best effort: a failed
// extraction leaves the zero value.
type Post struct {
	ID                    string         `json:"id"`
	GroupID               string         `json:"group_id,omitempty"`
	PostURL               string         `json:"post_url"`
	Author                Author         `json:"author"`
	Content               string         `json:"content"`
	PostedTime            string         `json:"posted_time"`
	PostedAt              *time.Time     `json:"posted_at,omitempty"`
	ScrapedAt             time.Time      `json:"scraped_at"`
	Engagement            Engagement     `json:"engagement"`
	Reactions             map[string]int `json:"reactions,omitempty"`
	PostType              string         `json:"post_type"`
	Images                []string       `json:"images,omitempty"`
	ExternalLinks         []string       `json:"external_links,omitempty"`
	Hashtags              []string       `json:"hashtags,omitempty"`
	Comments              []Comment      `json:"comments"`
	FullCommentsExtracted bool           `json:"full_comments_extracted"`
}

// Key is the identity used for deduplication.
func (p Post) Key() string {
	if p.PostURL != "" {
		return p.PostURL
	}
	return p.ID
}

// CommentCount counts top-level comments and their replies.
func (p Post) CommentCount() int {
	n := 0
	for _, c := range p.Comments {
		n += 1 + len(c.Replies)
	}
	return n
}

type ScraperInfo struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	RunID     string    `json:"run_id"`
	TargetURL string    `json:"target_url"`
}

type Statistics struct {
	TotalPosts        int     `json:"total_posts"`
	PostsWithComments int     `json:"posts_with_comments"`
	TotalComments     int     `json:"total_comments"`
	PostsWithURLs     int     `json:"posts_with_urls"`
	DurationSeconds   float64 `json:"duration_seconds"`
}

// ScrapeResult is the document written to the output JSON file.
type ScrapeResult struct {
	ScraperInfo ScraperInfo `json:"scraper_info"`
	Posts       []Post      `json:"posts"`
	Statistics  Statistics  `json:"statistics"`
}

func ComputeStatistics(posts []Post) Statistics {
	stats := Statistics{TotalPosts: len(posts)}
	for _, p := range posts {
		if n := p.CommentCount(); n > 0 {
			stats.PostsWithComments++
			stats.TotalComments += n
		}
		if p.PostURL != "" {
			stats.PostsWithURLs++
		}
	}
	return stats
}

// PostFilter defines criteria for keeping scraped posts
type PostFilter struct {
	MinLikes        int       `yaml:"min_likes"`
	MaxLikes        int       `yaml:"max_likes"`
	MinComments     int       `yaml:"min_comments"`
	MinShares       int       `yaml:"min_shares"`
	DaysBack        int       `yaml:"days_back"`
	Keywords        []string  `yaml:"keywords"`
	ExcludeKeywords []string  `yaml:"exclude_keywords"`
	AuthorNames     []string  `yaml:"author_names"`
	PostTypes       []string  `yaml:"post_types"`
	StartDate       time.Time `yaml:"start_date"`
	EndDate         time.Time `yaml:"end_date"`
}

// IsZero reports whether the filter keeps every post.
func (f PostFilter) IsZero() bool {
	return f.MinLikes == 0 && f.MaxLikes == 0 && f.MinComments == 0 && f.MinShares == 0 &&
		f.DaysBack == 0 && len(f.Keywords) == 0 && len(f.ExcludeKeywords) == 0 &&
		len(f.AuthorNames) == 0 && len(f.PostTypes) == 0 && f.StartDate.IsZero() && f.EndDate.IsZero()
}

// FilterStats tracks filtering statistics
type FilterStats struct {
	TotalPosts      int
	FilteredPosts   int
	LikesFiltered   int
	TimeFiltered    int
	KeywordFiltered int
}

func (fs FilterStats) String() string {
	return fmt.Sprintf("Total: %d, Kept: %d, Filtered by likes: %d, by time: %d, by keywords: %d",
		fs.TotalPosts, fs.FilteredPosts, fs.LikesFiltered, fs.TimeFiltered, fs.KeywordFiltered)
}

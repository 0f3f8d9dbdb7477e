package database

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"fbscrape/internal/database/models"
	"fbscrape/pkg/types"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const postColumns = `id, post_id, group_id, run_id, post_url, author_name, author_url, content,
	posted_time, posted_at, likes, comments, shares, post_type, images, external_links,
	hashtags, reactions, full_comments_extracted, scraped_at, created_at, updated_at`

// Stats summarizes the stored posts.
type Stats struct {
	TotalPosts    int            `json:"total_posts"`
	TotalComments int            `json:"total_comments"`
	RecentPosts   int            `json:"recent_posts"`
	AvgLikes      float64        `json:"avg_likes"`
	Groups        int            `json:"groups"`
	LastScraped   string         `json:"last_scraped"`
	PostTypes     map[string]int `json:"post_types"`
}

type AuthorStat struct {
	Name      string  `json:"author_name" db:"author_name"`
	PostCount int     `json:"post_count" db:"post_count"`
	AvgLikes  float64 `json:"avg_likes" db:"avg_likes"`
}

// SaveResult stores every post of a run and returns how many were saved.
func (db *DB) SaveResult(ctx context.Context, result *types.ScrapeResult) (int, error) {
	groupID := GroupIDFromURL(result.ScraperInfo.TargetURL)
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "save result: begin")
	}
	defer tx.Rollback()

	saved := 0
	for i := range result.Posts {
		if err := savePost(ctx, tx, &result.Posts[i], groupID, result.ScraperInfo.RunID); err != nil {
			return 0, errors.Wrapf(err, "save result: post %s", result.Posts[i].ID)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "save result: commit")
	}
	return saved, nil
}

// SavePost upserts a post and its comments.
func (db *DB) SavePost(ctx context.Context, post *types.Post) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "save post: begin")
	}
	defer tx.Rollback()

	if err := savePost(ctx, tx, post, "", ""); err != nil {
		return errors.Wrap(err, "save post")
	}
	return errors.Wrap(tx.Commit(), "save post: commit")
}

func savePost(ctx context.Context, tx *sqlx.Tx, post *types.Post, groupID, runID string) error {
	if post.ID == "" {
		return errors.New("post has no id")
	}
	query := `
		INSERT INTO posts (
			post_id, group_id, run_id, post_url, author_name, author_url, content,
			posted_time, posted_at, likes, comments, shares, post_type, images,
			external_links, hashtags, reactions, full_comments_extracted, scraped_at
		) VALUES (
			:post_id, :group_id, :run_id, :post_url, :author_name, :author_url, :content,
			:posted_time, :posted_at, :likes, :comments, :shares, :post_type, :images,
			:external_links, :hashtags, :reactions, :full_comments_extracted, :scraped_at
		) ON CONFLICT (post_id) DO UPDATE SET
			likes = excluded.likes,
			comments = excluded.comments,
			shares = excluded.shares,
			content = excluded.content,
			reactions = excluded.reactions,
			images = excluded.images,
			external_links = excluded.external_links,
			hashtags = excluded.hashtags,
			full_comments_extracted = excluded.full_comments_extracted,
			scraped_at = excluded.scraped_at,
			run_id = excluded.run_id,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := tx.NamedExecContext(ctx, query, models.NewPost(*post, groupID, runID)); err != nil {
		return errors.Wrap(err, "upsert post")
	}

	for _, c := range post.Comments {
		if err := saveComment(ctx, tx, models.NewComment(c, post.ID, nil)); err != nil {
			return err
		}
		parent := c.ID
		for _, r := range c.Replies {
			if err := saveComment(ctx, tx, models.NewComment(r, post.ID, &parent)); err != nil {
				return err
			}
		}
	}
	return nil
}

func saveComment(ctx context.Context, tx *sqlx.Tx, c models.Comment) error {
	query := `
		INSERT INTO comments (
			comment_id, post_id, parent_id, author_name, author_url, text, posted_time,
			likes, replies_count, is_pinned, is_edited, scraped_at
		) VALUES (
			:comment_id, :post_id, :parent_id, :author_name, :author_url, :text, :posted_time,
			:likes, :replies_count, :is_pinned, :is_edited, :scraped_at
		) ON CONFLICT (post_id, comment_id) DO UPDATE SET
			text = excluded.text,
			likes = excluded.likes,
			replies_count = excluded.replies_count,
			is_pinned = excluded.is_pinned,
			is_edited = excluded.is_edited,
			scraped_at = excluded.scraped_at`

	_, err := tx.NamedExecContext(ctx, query, c)
	return errors.Wrapf(err, "upsert comment %s", c.CommentID)
}

// GetPosts returns one page of posts with at least minLikes likes, most
// liked first.
func (db *DB) GetPosts(ctx context.Context, page, pageSize, minLikes int) ([]types.Post, error) {
	if page < 1 {
		page = 1
	}
	query := db.conn.Rebind(`SELECT ` + postColumns + ` FROM posts
		WHERE likes >= ?
		ORDER BY likes DESC, scraped_at DESC
		LIMIT ? OFFSET ?`)

	var rows []models.Post
	if err := db.conn.SelectContext(ctx, &rows, query, minLikes, pageSize, (page-1)*pageSize); err != nil {
		return nil, errors.Wrap(err, "get posts")
	}
	return toPosts(rows), nil
}

func (db *DB) GetPostsCount(ctx context.Context, minLikes int) (int, error) {
	var count int
	err := db.conn.GetContext(ctx, &count, db.conn.Rebind(`SELECT COUNT(*) FROM posts WHERE likes >= ?`), minLikes)
	return count, errors.Wrap(err, "get posts count")
}

func (db *DB) GetPostsByGroup(ctx context.Context, groupID string, limit int) ([]types.Post, error) {
	query := db.conn.Rebind(`SELECT ` + postColumns + ` FROM posts
		WHERE group_id = ?
		ORDER BY scraped_at DESC, id DESC
		LIMIT ?`)

	var rows []models.Post
	if err := db.conn.SelectContext(ctx, &rows, query, groupID, limit); err != nil {
		return nil, errors.Wrap(err, "get posts by group")
	}
	return toPosts(rows), nil
}

// GetPostsForExport returns every post with at least minLikes likes.
func (db *DB) GetPostsForExport(ctx context.Context, minLikes int) ([]types.Post, error) {
	query := db.conn.Rebind(`SELECT ` + postColumns + ` FROM posts
		WHERE likes >= ?
		ORDER BY scraped_at DESC, id DESC`)

	var rows []models.Post
	if err := db.conn.SelectContext(ctx, &rows, query, minLikes); err != nil {
		return nil, errors.Wrap(err, "get posts for export")
	}
	return toPosts(rows), nil
}

// GetComments returns the comments of a post with their replies nested.
func (db *DB) GetComments(ctx context.Context, postID string) ([]types.Comment, error) {
	query := db.conn.Rebind(`SELECT id, comment_id, post_id, parent_id, author_name, author_url,
			text, posted_time, likes, replies_count, is_pinned, is_edited, scraped_at
		FROM comments
		WHERE post_id = ?
		ORDER BY id`)

	var rows []models.Comment
	if err := db.conn.SelectContext(ctx, &rows, query, postID); err != nil {
		return nil, errors.Wrap(err, "get comments")
	}

	comments := []types.Comment{}
	index := make(map[string]int)
	for _, r := range rows {
		if r.ParentID == nil {
			index[r.CommentID] = len(comments)
			comments = append(comments, r.ToComment())
		}
	}
	for _, r := range rows {
		if r.ParentID == nil {
			continue
		}
		if i, ok := index[*r.ParentID]; ok {
			comments[i].Replies = append(comments[i].Replies, r.ToComment())
		}
	}
	return comments, nil
}

func (db *DB) GetScrapingStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{PostTypes: map[string]int{}}

	if err := db.conn.GetContext(ctx, &stats.TotalPosts, `SELECT COUNT(*) FROM posts`); err != nil {
		return nil, errors.Wrap(err, "count posts")
	}
	if err := db.conn.GetContext(ctx, &stats.TotalComments, `SELECT COUNT(*) FROM comments`); err != nil {
		return nil, errors.Wrap(err, "count comments")
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if err := db.conn.GetContext(ctx, &stats.RecentPosts, db.conn.Rebind(`SELECT COUNT(*) FROM posts WHERE scraped_at >= ?`), since); err != nil {
		return nil, errors.Wrap(err, "count recent posts")
	}
	if err := db.conn.GetContext(ctx, &stats.AvgLikes, `SELECT COALESCE(AVG(likes), 0) FROM posts`); err != nil {
		return nil, errors.Wrap(err, "average likes")
	}
	if err := db.conn.GetContext(ctx, &stats.Groups, `SELECT COUNT(DISTINCT group_id) FROM posts WHERE group_id <> ''`); err != nil {
		return nil, errors.Wrap(err, "count groups")
	}
	if err := db.conn.GetContext(ctx, &stats.LastScraped, `SELECT COALESCE(CAST(MAX(scraped_at) AS TEXT), '') FROM posts`); err != nil {
		return nil, errors.Wrap(err, "last scraped")
	}

	var byType []struct {
		PostType string `db:"post_type"`
		Count    int    `db:"count"`
	}
	if err := db.conn.SelectContext(ctx, &byType, `SELECT post_type, COUNT(*) AS count FROM posts GROUP BY post_type`); err != nil {
		return nil, errors.Wrap(err, "count post types")
	}
	for _, t := range byType {
		stats.PostTypes[t.PostType] = t.Count
	}
	return stats, nil
}

func (db *DB) GetTopAuthors(ctx context.Context, limit int) ([]AuthorStat, error) {
	query := db.conn.Rebind(`SELECT author_name, COUNT(*) AS post_count, COALESCE(AVG(likes), 0) AS avg_likes
		FROM posts
		WHERE author_name <> ''
		GROUP BY author_name
		ORDER BY post_count DESC, avg_likes DESC
		LIMIT ?`)

	var authors []AuthorStat
	if err := db.conn.SelectContext(ctx, &authors, query, limit); err != nil {
		return nil, errors.Wrap(err, "get top authors")
	}
	return authors, nil
}

func toPosts(rows []models.Post) []types.Post {
	posts := make([]types.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.ToPost())
	}
	return posts
}

// GroupIDFromURL returns the group slug or ID of a /groups/ URL, or "".
func GroupIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "groups" {
			return parts[i+1]
		}
	}
	return ""
}

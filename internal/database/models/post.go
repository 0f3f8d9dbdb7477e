package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"fbscrape/pkg/types"
)

// Post is a row of the posts table. Times are stored in UTC so they compare
// correctly in SQLite, where they are text.
type Post struct {
	ID                    int64       `json:"id" db:"id"`
	PostID                string      `json:"post_id" db:"post_id"`
	GroupID               string      `json:"group_id" db:"group_id"`
	RunID                 string      `json:"run_id" db:"run_id"`
	PostURL               string      `json:"post_url" db:"post_url"`
	AuthorName            string      `json:"author_name" db:"author_name"`
	AuthorURL             string      `json:"author_url" db:"author_url"`
	Content               string      `json:"content" db:"content"`
	PostedTime            string      `json:"posted_time" db:"posted_time"`
	PostedAt              *time.Time  `json:"posted_at" db:"posted_at"`
	Likes                 int         `json:"likes" db:"likes"`
	Comments              int         `json:"comments" db:"comments"`
	Shares                int         `json:"shares" db:"shares"`
	PostType              string      `json:"post_type" db:"post_type"`
	Images                StringArray `json:"images" db:"images"`
	ExternalLinks         StringArray `json:"external_links" db:"external_links"`
	Hashtags              StringArray `json:"hashtags" db:"hashtags"`
	Reactions             CountMap    `json:"reactions" db:"reactions"`
	FullCommentsExtracted bool        `json:"full_comments_extracted" db:"full_comments_extracted"`
	ScrapedAt             time.Time   `json:"scraped_at" db:"scraped_at"`
	CreatedAt             time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at" db:"updated_at"`
}

func NewPost(p types.Post, groupID, runID string) Post {
	if p.GroupID != "" {
		groupID = p.GroupID
	}
	var postedAt *time.Time
	if p.PostedAt != nil {
		t := p.PostedAt.UTC()
		postedAt = &t
	}
	return Post{
		PostID:                p.ID,
		GroupID:               groupID,
		RunID:                 runID,
		PostURL:               p.PostURL,
		AuthorName:            p.Author.Name,
		AuthorURL:             p.Author.URL,
		Content:               p.Content,
		PostedTime:            p.PostedTime,
		PostedAt:              postedAt,
		Likes:                 p.Engagement.Likes,
		Comments:              p.Engagement.Comments,
		Shares:                p.Engagement.Shares,
		PostType:              p.PostType,
		Images:                p.Images,
		ExternalLinks:         p.ExternalLinks,
		Hashtags:              p.Hashtags,
		Reactions:             p.Reactions,
		FullCommentsExtracted: p.FullCommentsExtracted,
		ScrapedAt:             p.ScrapedAt.UTC(),
	}
}

// ToPost converts the row back; comments are loaded separately.
func (p Post) ToPost() types.Post {
	return types.Post{
		ID:                    p.PostID,
		GroupID:               p.GroupID,
		PostURL:               p.PostURL,
		Author:                types.Author{Name: p.AuthorName, URL: p.AuthorURL},
		Content:               p.Content,
		PostedTime:            p.PostedTime,
		PostedAt:              p.PostedAt,
		ScrapedAt:             p.ScrapedAt,
		Engagement:            types.Engagement{Likes: p.Likes, Comments: p.Comments, Shares: p.Shares},
		Reactions:             p.Reactions,
		PostType:              p.PostType,
		Images:                p.Images,
		ExternalLinks:         p.ExternalLinks,
		Hashtags:              p.Hashtags,
		Comments:              []types.Comment{},
		FullCommentsExtracted: p.FullCommentsExtracted,
	}
}

type Comment struct {
	ID           int64     `db:"id"`
	CommentID    string    `db:"comment_id"`
	PostID       string    `db:"post_id"`
	ParentID     *string   `db:"parent_id"`
	AuthorName   string    `db:"author_name"`
	AuthorURL    string    `db:"author_url"`
	Text         string    `db:"text"`
	PostedTime   string    `db:"posted_time"`
	Likes        int       `db:"likes"`
	RepliesCount int       `db:"replies_count"`
	IsPinned     bool      `db:"is_pinned"`
	IsEdited     bool      `db:"is_edited"`
	ScrapedAt    time.Time `db:"scraped_at"`
}

func NewComment(c types.Comment, postID string, parentID *string) Comment {
	return Comment{
		CommentID:    c.ID,
		PostID:       postID,
		ParentID:     parentID,
		AuthorName:   c.Author.Name,
		AuthorURL:    c.Author.URL,
		Text:         c.Text,
		PostedTime:   c.PostedTime,
		Likes:        c.Likes,
		RepliesCount: c.RepliesCount,
		IsPinned:     c.IsPinned,
		IsEdited:     c.IsEdited,
		ScrapedAt:    c.ScrapedAt.UTC(),
	}
}

func (c Comment) ToComment() types.Comment {
	return types.Comment{
		ID:           c.CommentID,
		Author:       types.Author{Name: c.AuthorName, URL: c.AuthorURL},
		Text:         c.Text,
		PostedTime:   c.PostedTime,
		ScrapedAt:    c.ScrapedAt,
		Likes:        c.Likes,
		RepliesCount: c.RepliesCount,
		IsPinned:     c.IsPinned,
		IsEdited:     c.IsEdited,
	}
}

// StringArray stores a string list as a JSON text column, which works the
// same in PostgreSQL and SQLite.
type StringArray []string

func (sa StringArray) Value() (driver.Value, error) {
	if len(sa) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(sa))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (sa *StringArray) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*sa = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(sa))
}

// CountMap stores reaction counts as a JSON text column.
type CountMap map[string]int

func (m CountMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]int(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *CountMap) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 || string(data) == "{}" {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, (*map[string]int)(m))
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported type for a JSON column")
	}
}

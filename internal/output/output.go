// Package output writes scrape results to disk.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fbscrape/pkg/types"
)

const filePattern = "facebook_scrape_20060102_150405"

type Writer struct {
	dir    string
	logger *logrus.Logger
	now    func() time.Time
}

func NewWriter(dir string, logger *logrus.Logger) *Writer {
	return &Writer{dir: dir, logger: logger, now: time.Now}
}

// Save writes result as indented JSON into the output directory and
// returns the file path. The name carries the time and the start of the run
// ID; an existing file is never overwritten.
func (w *Writer) Save(result *types.ScrapeResult) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := Marshal(result)
	if err != nil {
		return "", err
	}

	path, err := w.create(fileName(w.now(), result.ScraperInfo.RunID), data)
	if err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}

	w.logger.Infof("Results saved to %s (%d posts, %d comments)",
		path, result.Statistics.TotalPosts, result.Statistics.TotalComments)
	return path, nil
}

func fileName(t time.Time, runID string) string {
	name := t.Format(filePattern)
	if runID = strings.ReplaceAll(runID, "-", ""); runID != "" {
		if len(runID) > 8 {
			runID = runID[:8]
		}
		name += "_" + runID
	}
	return name
}

// create writes data to <name>.json, or <name>_2.json and so on when the
// name is taken.
func (w *Writer) create(name string, data []byte) (string, error) {
	for n := 1; ; n++ {
		path := filepath.Join(w.dir, name+".json")
		if n > 1 {
			path = filepath.Join(w.dir, fmt.Sprintf("%s_%d.json", name, n))
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

// Marshal encodes result with two-space indent and without escaping
// non-ASCII or HTML characters.
func Marshal(result *types.ScrapeResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	return buf.Bytes(), nil
}

func Load(path string) (*types.ScrapeResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var result types.ScrapeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse results %s: %w", path, err)
	}
	return &result, nil
}

var csvHeader = []string{
	"Post ID", "Author", "Author URL", "Content", "Posted", "Likes", "Comments",
	"Shares", "Post Type", "Extracted Comments", "URL",
}

// WriteCSV writes one row per post.
func WriteCSV(w io.Writer, posts []types.Post) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range posts {
		posted := p.PostedTime
		if p.PostedAt != nil {
			posted = p.PostedAt.Format("2006-01-02 15:04:05")
		}
		row := []string{
			p.ID,
			p.Author.Name,
			p.Author.URL,
			strings.TrimSpace(p.Content),
			posted,
			strconv.Itoa(p.Engagement.Likes),
			strconv.Itoa(p.Engagement.Comments),
			strconv.Itoa(p.Engagement.Shares),
			p.PostType,
			strconv.Itoa(p.CommentCount()),
			p.PostURL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

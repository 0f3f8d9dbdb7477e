package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fbscrape/internal/database"
	"fbscrape/internal/output"
	"fbscrape/pkg/types"
)

// Store is the read side of the database used by the API.
type Store interface {
	GetPosts(ctx context.Context, page, pageSize, minLikes int) ([]types.Post, error)
	GetPostsCount(ctx context.Context, minLikes int) (int, error)
	GetPostsByGroup(ctx context.Context, groupID string, limit int) ([]types.Post, error)
	GetPostsForExport(ctx context.Context, minLikes int) ([]types.Post, error)
	GetComments(ctx context.Context, postID string) ([]types.Comment, error)
	GetScrapingStats(ctx context.Context) (*database.Stats, error)
	GetTopAuthors(ctx context.Context, limit int) ([]database.AuthorStat, error)
	Ping(ctx context.Context) error
}

type Server struct {
	store   Store
	logger  *logrus.Logger
	port    string
	metrics http.Handler
	now     func() time.Time
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Count   int         `json:"count,omitempty"`
}

type PostsResponse struct {
	Posts      []types.Post `json:"posts"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}

type StatsResponse struct {
	*database.Stats
	TopAuthors []database.AuthorStat `json:"top_authors"`
}

// NewServer builds the API. metrics may be nil, in which case /metrics is
// not served.
func NewServer(store Store, logger *logrus.Logger, port string, metrics http.Handler) *Server {
	return &Server{
		store:   store,
		logger:  logger,
		port:    port,
		metrics: metrics,
		now:     time.Now,
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting API server on port %s", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.corsMiddleware(s.handleRoot))
	mux.HandleFunc("/api/posts", s.corsMiddleware(s.handlePosts))
	mux.HandleFunc("/api/posts/", s.corsMiddleware(s.handlePostsSubtree))
	mux.HandleFunc("/api/stats", s.corsMiddleware(s.handleStats))
	mux.HandleFunc("/api/export/csv", s.corsMiddleware(s.handleExportCSV))
	mux.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))
	mux.HandleFunc("/dashboard", s.corsMiddleware(s.handleDashboard))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, "Not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]string{
			"message":   "fbscrape API",
			"version":   "2.0.0",
			"endpoints": "/api/posts, /api/posts/group/{id}, /api/posts/{id}/comments, /api/stats, /api/export/csv, /api/health, /metrics, /dashboard",
		},
	})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q.Get("page"), 1, 1, 0)
	pageSize := intParam(q.Get("page_size"), 20, 1, 100)
	minLikes := intParam(q.Get("min_likes"), 0, 0, 0)

	posts, err := s.store.GetPosts(r.Context(), page, pageSize, minLikes)
	if err != nil {
		s.fail(w, "Failed to fetch posts", err)
		return
	}
	total, err := s.store.GetPostsCount(r.Context(), minLikes)
	if err != nil {
		s.fail(w, "Failed to get total count", err)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: PostsResponse{
			Posts:      posts,
			TotalCount: total,
			Page:       page,
			PageSize:   pageSize,
		},
		Count: len(posts),
	})
}

// handlePostsSubtree serves /api/posts/group/{id} and /api/posts/{id}/comments.
func (s *Server) handlePostsSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/posts/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 2 && parts[0] == "group" && parts[1] != "":
		s.handlePostsByGroup(w, r, parts[1])
	case len(parts) == 2 && parts[1] == "comments" && parts[0] != "":
		s.handleComments(w, r, parts[0])
	case len(parts) == 1 && parts[0] == "group":
		s.writeError(w, "Group ID is required", http.StatusBadRequest)
	default:
		s.writeError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handlePostsByGroup(w http.ResponseWriter, r *http.Request, groupID string) {
	limit := intParam(r.URL.Query().Get("limit"), 50, 1, 100)

	posts, err := s.store.GetPostsByGroup(r.Context(), groupID, limit)
	if err != nil {
		s.fail(w, "Failed to fetch posts for group", err)
		return
	}
	s.writeJSON(w, APIResponse{Success: true, Data: posts, Count: len(posts)})
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request, postID string) {
	comments, err := s.store.GetComments(r.Context(), postID)
	if err != nil {
		s.fail(w, "Failed to fetch comments", err)
		return
	}
	s.writeJSON(w, APIResponse{Success: true, Data: comments, Count: len(comments)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetScrapingStats(r.Context())
	if err != nil {
		s.fail(w, "Failed to fetch stats", err)
		return
	}
	authors, err := s.store.GetTopAuthors(r.Context(), intParam(r.URL.Query().Get("authors"), 10, 1, 100))
	if err != nil {
		s.fail(w, "Failed to fetch top authors", err)
		return
	}
	s.writeJSON(w, APIResponse{Success: true, Data: StatsResponse{Stats: stats, TopAuthors: authors}})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	minLikes := intParam(r.URL.Query().Get("min_likes"), 0, 0, 0)

	posts, err := s.store.GetPostsForExport(r.Context(), minLikes)
	if err != nil {
		s.fail(w, "Failed to fetch posts for export", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=facebook_posts_%s.csv", s.now().Format("2006-01-02")))
	if err := output.WriteCSV(w, posts); err != nil {
		s.logger.WithError(err).Warn("CSV export interrupted")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Health check failed")
		s.writeError(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":    "healthy",
			"timestamp": s.now().Format(time.RFC3339),
			"database":  "connected",
		},
	})
}

func (s *Server) fail(w http.ResponseWriter, message string, err error) {
	s.logger.WithError(err).Error(message)
	s.writeError(w, fmt.Sprintf("%s: %v", message, err), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

// intParam parses v, falling back to def when it is missing, below min or
// above a positive max.
func intParam(v string, def, min, max int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return def
	}
	if max > 0 && n > max {
		return def
	}
	return n
}

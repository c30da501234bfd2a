// Package api serves read-only statistics over the enriched article store.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/store"
)

// MaxLatestLimit caps the limit query parameter of /articles/latest.
const MaxLatestLimit = 100

// StatsReader is the subset of the store the API reads from.
type StatsReader interface {
	CategoryBreakdown(ctx context.Context, f store.CleanFilter) ([]model.CountBucket, error)
	SentimentBreakdown(ctx context.Context, f store.CleanFilter) ([]model.CountBucket, error)
	LatestClean(ctx context.Context, f store.CleanFilter, n int) ([]model.ArticleDigest, error)
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	Filter         store.CleanFilter
	LatestLimit    int
	AllowedOrigins []string
}

type server struct {
	st   StatsReader
	opts Options
}

// NewRouter builds the HTTP handler for the stats API.
func NewRouter(st StatsReader, opts Options) http.Handler {
	if opts.LatestLimit <= 0 {
		opts.LatestLimit = store.DefaultLatestLimit
	}
	if opts.LatestLimit > MaxLatestLimit {
		opts.LatestLimit = MaxLatestLimit
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &server{st: st, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/stats", func(r chi.Router) {
		r.Get("/category", s.categoryStats)
		r.Get("/sentiment", s.sentimentStats)
	})
	r.Get("/articles/latest", s.latest)
	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(r.Context()); err != nil {
		zap.L().Warn("api: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) categoryStats(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.st.CategoryBreakdown(r.Context(), s.opts.Filter)
	if err != nil {
		writeError(w, r, "category breakdown", err)
		return
	}
	if buckets == nil {
		buckets = []model.CountBucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *server) sentimentStats(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.st.SentimentBreakdown(r.Context(), s.opts.Filter)
	if err != nil {
		writeError(w, r, "sentiment breakdown", err)
		return
	}
	if buckets == nil {
		buckets = []model.CountBucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *server) latest(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.LatestLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxLatestLimit)
	}

	digests, err := s.st.LatestClean(r.Context(), s.opts.Filter, limit)
	if err != nil {
		writeError(w, r, "latest articles", err)
		return
	}
	if digests == nil {
		digests = []model.ArticleDigest{}
	}
	writeJSON(w, http.StatusOK, digests)
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zap.L().Error("api: "+op+" failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

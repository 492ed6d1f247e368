package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hubenschmidt/postsearch/embedding"
	"github.com/hubenschmidt/postsearch/engine"
	"github.com/hubenschmidt/postsearch/monitor"
	"github.com/hubenschmidt/postsearch/server/store"
)

// Config configures a new Server instance.
type Config struct {
	Store     store.PostStore
	Provider  embedding.Provider
	Executor  *engine.Executor
	Collector monitor.TaskCollector // Optional: defaults to a no-op collector
	Options   engine.Options

	AllowOrigins []string // Empty allows every origin
	DebugRoutes  bool
}

// Server serves the post and search API.
type Server struct {
	store     store.PostStore
	provider  embedding.Provider
	exec      *engine.Executor
	collector monitor.TaskCollector
	ingestor  *engine.Ingestor
	searcher  *engine.Searcher
	opts      engine.Options
	origins   []string
	debug     bool
	log       *logrus.Entry
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Provider == nil || cfg.Executor == nil {
		return nil, errors.New("server requires a store, a provider and an executor")
	}
	collector := cfg.Collector
	if collector == nil {
		collector = monitor.NewNoOpCollector()
	}

	return &Server{
		store:     cfg.Store,
		provider:  cfg.Provider,
		exec:      cfg.Executor,
		collector: collector,
		ingestor:  engine.NewIngestor(cfg.Store, cfg.Provider, cfg.Executor, cfg.Options),
		searcher:  engine.NewSearcher(cfg.Store, cfg.Provider, cfg.Options),
		opts:      cfg.Options,
		origins:   cfg.AllowOrigins,
		debug:     cfg.DebugRoutes,
		log:       logrus.WithField("component", "http"),
	}, nil
}

// Close drains background work, then closes the store. If ctx expires while
// tasks are still running the store is left open for them and the error is
// returned; calling Close again retries.
func (s *Server) Close(ctx context.Context) error {
	if err := s.exec.Stop(ctx); err != nil {
		s.log.WithError(err).Warn("background tasks still running; store left open")
		return err
	}
	return s.store.Close()
}

// Handler returns an http.Handler for all routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	config := cors.DefaultConfig()
	if len(s.origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.origins
		config.AllowCredentials = true
	}
	r.Use(cors.New(config))

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/posts", s.handleCreatePost)
		api.GET("/posts/:id", s.handleGetPost)
		api.POST("/search", s.handleSearch)
		api.POST("/search-multipart", s.handleSearchMultipart)
	}

	if s.debug {
		api.POST("/search-debug", s.handleSearchDebug)

		dbg := r.Group("/debug")
		{
			dbg.GET("/stats", s.handleStats)
			dbg.GET("/posts", s.handleListPosts)
			dbg.POST("/q", s.handleQueryDebug)
			dbg.GET("/metrics", s.handleMetrics)
		}
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}

// LogStartupReport logs row counts per embedding model and warns about rows
// that searches will skip because another model produced them.
func (s *Server) LogStartupReport(ctx context.Context) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		s.log.WithError(err).Warn("could not read store stats")
		return
	}

	active := s.provider.ModelID()
	s.log.WithFields(logrus.Fields{
		"db":       st.Database,
		"posts":    st.PostsTotal,
		"embedded": st.PostsWithEmbedding,
		"model":    active,
		"dim":      s.provider.Dimension(),
	}).Info("store ready")

	if preferred := s.provider.Metric(); s.opts.Metric != preferred {
		s.log.WithFields(logrus.Fields{"metric": s.opts.Metric, "provider_metric": preferred}).
			Warn("configured distance metric differs from the one the provider is trained for")
	}

	for model, n := range st.ByModel {
		if model != active {
			s.log.WithFields(logrus.Fields{"model": model, "rows": n, "active_model": active}).
				Warn("rows embedded by another model are excluded from search")
		}
	}
}

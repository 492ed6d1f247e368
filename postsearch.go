// Package postsearch stores posts, embeds them in the background, and answers
// text or image similarity queries over the stored vectors.
//
// Example usage:
//
//	cfg, err := config.Load("")
//	srv, err := postsearch.NewServerFromConfig(cfg)
//	http.ListenAndServe(cfg.Addr, srv.Handler())
package postsearch

import (
	"context"
	"fmt"

	"github.com/hubenschmidt/postsearch/config"
	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/embedding"
	"github.com/hubenschmidt/postsearch/engine"
	"github.com/hubenschmidt/postsearch/monitor"
	"github.com/hubenschmidt/postsearch/sanitize"
	"github.com/hubenschmidt/postsearch/server"
	"github.com/hubenschmidt/postsearch/server/store"
	"github.com/hubenschmidt/postsearch/vector"
)

// Error sentinels
var (
	ErrInvalidInput        = core.ErrInvalidInput
	ErrProviderUnavailable = core.ErrProviderUnavailable
	ErrProviderAuth        = core.ErrProviderAuth
	ErrNotFound            = core.ErrNotFound
	ErrValidation          = core.ErrValidation
)

// Distance metrics
const (
	Cosine    = vector.Cosine
	Euclidean = vector.Euclidean
)

type (
	Config = config.Config
	Metric = vector.Metric
)

// Embedding aliases
type (
	Provider      = embedding.Provider
	EmbeddingMode = embedding.Mode
)

// NewProvider builds the embedding provider selected by cfg.
func NewProvider(cfg config.Embedding) (Provider, error) {
	return embedding.New(cfg)
}

// Store aliases
type (
	Post      = store.Post
	PostStore = store.PostStore
	Neighbor  = store.Neighbor
)

// OpenStore opens the post store named by dsn for vectors of length dim.
func OpenStore(dsn string, dim int) (PostStore, error) {
	return store.NewPostStore(dsn, dim)
}

// Orchestration aliases
type (
	Ingestor      = engine.Ingestor
	Searcher      = engine.Searcher
	SearchRequest = engine.SearchRequest
	Executor      = engine.Executor
)

// NewNormalizer returns the text normalizer used for queries.
func NewNormalizer(maxRunes int) sanitize.Normalizer {
	return sanitize.New(maxRunes)
}

// Server aliases
type (
	Server       = server.Server
	ServerConfig = server.Config
)

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	return server.New(cfg)
}

// NewServerFromConfig wires provider, store, executor and server from cfg.
// The caller owns the returned server and must Close it.
func NewServerFromConfig(cfg *Config) (*Server, error) {
	provider, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}

	st, err := store.NewPostStore(cfg.DatabaseDSN, provider.Dimension())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	collector := monitor.NewInMemoryCollector(monitor.DefaultRecentTasks)
	exec := engine.NewExecutor(cfg.Worker, collector)

	srv, err := server.New(server.Config{
		Store:        st,
		Provider:     provider,
		Executor:     exec,
		Collector:    collector,
		Options:      engine.OptionsFromConfig(cfg),
		AllowOrigins: cfg.AllowedOrigins(),
		DebugRoutes:  cfg.DebugRoutes,
	})
	if err != nil {
		_ = exec.Stop(context.Background())
		st.Close()
		return nil, err
	}
	return srv, nil
}

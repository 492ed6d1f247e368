package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/vector"
)

const (
	MinLimit = 1
	MaxLimit = 200

	// DefaultListLimit bounds ListPosts when the caller passes a non-positive limit.
	DefaultListLimit = 50
)

// Post is a stored post. Embedding, EmbeddingModel and EmbeddingVersion are
// either all set or all zero.
type Post struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	Embedding        []float32 `json:"-"`
	EmbeddingModel   string    `json:"embedding_model,omitempty"`
	EmbeddingVersion int       `json:"embedding_version,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (p Post) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// PostSummary is a lightweight listing row
type PostSummary struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	EmbeddingModel string `json:"embedding_model"`
	HasEmbedding   bool   `json:"has_embedding"`
}

// Stats describes the backing database
type Stats struct {
	Database           string           `json:"db"`
	PostsTotal         int64            `json:"posts_total"`
	PostsWithEmbedding int64            `json:"posts_with_embedding"`
	ByModel            map[string]int64 `json:"by_model"`
}

// NeighborQuery is a single nearest-neighbour lookup. Model, when set,
// restricts candidates to rows embedded by that model.
type NeighborQuery struct {
	Vector []float32
	Limit  int
	Metric vector.Metric
	Probes int
	Model  string
}

// Neighbor is a post with its distance to the query vector. Embedding is not populated.
type Neighbor struct {
	Post
	Distance float64 `json:"distance"`
}

// PostStore defines the interface for post persistence and vector lookup
type PostStore interface {
	CreatePost(ctx context.Context, title, body string) (Post, error)
	GetPost(ctx context.Context, id int64) (Post, error)
	GetPostText(ctx context.Context, id int64) (title, body string, err error)
	SetEmbedding(ctx context.Context, id int64, vec []float32, model string, version int) error
	NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Neighbor, error)
	ListPosts(ctx context.Context, limit int) ([]PostSummary, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// ClampLimit bounds a requested result count to [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	return min(max(n, MinLimit), MaxLimit)
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return core.Wrapf(core.ErrValidation, "title is required")
	}
	return nil
}

func validateEmbedding(vec []float32, model string, dim int) error {
	if len(vec) != dim {
		return core.Wrapf(core.ErrValidation, "embedding has %d dimensions, store expects %d", len(vec), dim)
	}
	if strings.TrimSpace(model) == "" {
		return core.Wrapf(core.ErrValidation, "embedding model is required")
	}
	return nil
}

func validateQuery(q NeighborQuery, dim int) (NeighborQuery, error) {
	if len(q.Vector) != dim {
		return q, core.Wrapf(core.ErrInvalidInput, "query vector has %d dimensions, store expects %d", len(q.Vector), dim)
	}
	if q.Metric == "" {
		q.Metric = vector.Cosine
	}
	if q.Metric != vector.Cosine && q.Metric != vector.Euclidean {
		return q, core.Wrapf(core.ErrInvalidInput, "unsupported metric %q", q.Metric)
	}
	q.Limit = ClampLimit(q.Limit)
	return q, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return min(n, MaxLimit)
}

// rankExact orders candidates by distance then id and keeps the first limit.
// Used by backends that scan instead of using an ANN index.
func rankExact(candidates []Neighbor, limit int) []Neighbor {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

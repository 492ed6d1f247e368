package store

import (
	"context"
	"sync"
	"time"

	"github.com/hubenschmidt/postsearch/core"
)

// MemoryStore is an in-memory post store for development and testing.
// Nearest-neighbour queries are exact scans.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	nextID int64
	posts  map[int64]Post
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:   dim,
		posts: make(map[int64]Post),
	}
}

func (s *MemoryStore) CreatePost(ctx context.Context, title, body string) (Post, error) {
	if err := validateTitle(title); err != nil {
		return Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p := Post{ID: s.nextID, Title: title, Body: body, CreatedAt: time.Now().UTC()}
	s.posts[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id int64) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return Post{}, core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	p.Embedding = append([]float32(nil), p.Embedding...)
	return p, nil
}

func (s *MemoryStore) GetPostText(ctx context.Context, id int64) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return "", "", core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	return p.Title, p.Body, nil
}

func (s *MemoryStore) SetEmbedding(ctx context.Context, id int64, vec []float32, model string, version int) error {
	if err := validateEmbedding(vec, model, s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	p.Embedding = append([]float32(nil), vec...)
	p.EmbeddingModel = model
	p.EmbeddingVersion = version
	s.posts[id] = p
	return nil
}

func (s *MemoryStore) NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Neighbor, error) {
	q, err := validateQuery(q, s.dim)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]Neighbor, 0, len(s.posts))
	for _, p := range s.posts {
		if !p.HasEmbedding() || (q.Model != "" && p.EmbeddingModel != q.Model) {
			continue
		}
		d := q.Metric.Distance(q.Vector, p.Embedding)
		p.Embedding = nil
		candidates = append(candidates, Neighbor{Post: p, Distance: d})
	}
	return rankExact(candidates, q.Limit), nil
}

func (s *MemoryStore) ListPosts(ctx context.Context, limit int) ([]PostSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = listLimit(limit)
	out := make([]PostSummary, 0, min(limit, len(s.posts)))
	for id := int64(1); id <= s.nextID && len(out) < limit; id++ {
		p, ok := s.posts[id]
		if !ok {
			continue
		}
		out = append(out, PostSummary{ID: p.ID, Title: p.Title, EmbeddingModel: p.EmbeddingModel, HasEmbedding: p.HasEmbedding()})
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Database: "memory", PostsTotal: int64(len(s.posts)), ByModel: map[string]int64{}}
	for _, p := range s.posts {
		if p.HasEmbedding() {
			st.PostsWithEmbedding++
			st.ByModel[p.EmbeddingModel]++
		}
	}
	return st, nil
}

// Close is a no-op for in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

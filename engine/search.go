package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/embedding"
	"github.com/hubenschmidt/postsearch/sanitize"
	"github.com/hubenschmidt/postsearch/server/store"
)

type SearchRequest struct {
	Text  string
	Image []byte
	Limit int
}

// Searcher embeds queries and ranks stored posts against them.
type Searcher struct {
	store    store.PostStore
	provider embedding.Provider
	clean    sanitize.Normalizer
	opts     Options
	log      *logrus.Entry
}

func NewSearcher(st store.PostStore, provider embedding.Provider, opts Options) *Searcher {
	return &Searcher{
		store:    st,
		provider: provider,
		clean:    sanitize.New(opts.MaxTextRunes),
		opts:     opts,
		log:      logrus.WithField("component", "search"),
	}
}

// Search returns the nearest posts embedded by the active model.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) ([]store.Neighbor, error) {
	vec, err := s.EmbedQuery(ctx, req.Text, req.Image)
	if err != nil {
		return nil, err
	}

	results, err := s.store.NearestNeighbors(ctx, store.NeighborQuery{
		Vector: vec,
		Limit:  req.Limit,
		Metric: s.opts.Metric,
		Probes: s.opts.Probes,
		Model:  s.provider.ModelID(),
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"results":   len(results),
		"limit":     store.ClampLimit(req.Limit),
		"has_image": len(req.Image) > 0,
	}).Debug("search complete")
	return results, nil
}

// EmbedQuery normalizes the query text and embeds it in query mode.
func (s *Searcher) EmbedQuery(ctx context.Context, text string, image []byte) ([]float32, error) {
	text = s.clean.Clean(text)
	if text == "" && len(image) == 0 {
		return nil, core.Wrapf(core.ErrInvalidInput, "empty query")
	}
	if s.opts.imageTooLarge(image) {
		return nil, core.Wrapf(core.ErrInvalidInput, "image too large")
	}
	return s.provider.Embed(ctx, text, image, embedding.ModeQuery)
}

func (s *Searcher) ModelID() string { return s.provider.ModelID() }

func (s *Searcher) Dimension() int { return s.provider.Dimension() }

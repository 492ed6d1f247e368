// Package embedding turns post text, images, or both into one L2-normalized vector.
//
// Two providers are available: a remote multimodal API (Cohere v2 embed) and a
// local fused provider that encodes each modality separately and mixes the
// results. The provider is chosen once at startup with New.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubenschmidt/postsearch/config"
	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/vector"
)

// Mode tells the provider which side of the search an input is on.
type Mode string

const (
	ModeDocument Mode = "document"
	ModeQuery    Mode = "query"
)

// SchemaVersion is stamped on every stored embedding. Bump it when the fusion
// or normalization policy changes incompatibly.
const SchemaVersion = 1

// Provider produces embeddings. Implementations are safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, text string, image []byte, mode Mode) ([]float32, error)
	ModelID() string
	Dimension() int
	Metric() vector.Metric
}

// New builds the provider selected by cfg.Provider.
func New(cfg config.Embedding) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderCohere:
		return NewCohereProvider(cfg.Cohere), nil
	case config.ProviderLocal:
		enc, err := NewEncoder(cfg.Local)
		if err != nil {
			return nil, err
		}
		return NewFusedProvider(enc, NewTokenizer(cfg.Local.VocabSize), cfg.Local.FuseAlpha)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}

func checkInput(text string, image []byte) error {
	if strings.TrimSpace(text) == "" && len(image) == 0 {
		return core.Wrapf(core.ErrInvalidInput, "text or image is required")
	}
	return nil
}

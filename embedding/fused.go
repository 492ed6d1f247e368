package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/vector"
)

// FusedProvider encodes text and image separately with a local dual encoder and
// mixes them as normalize(alpha*text + (1-alpha)*image).
type FusedProvider struct {
	enc   DualEncoder
	tok   *Tokenizer
	alpha float64
	log   *logrus.Entry
}

func NewFusedProvider(enc DualEncoder, tok *Tokenizer, alpha float64) (*FusedProvider, error) {
	if enc == nil {
		return nil, errors.New("dual encoder is required")
	}
	if tok == nil {
		return nil, errors.New("tokenizer is required")
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("fuse alpha must be within [0,1], got %v", alpha)
	}
	return &FusedProvider{
		enc:   enc,
		tok:   tok,
		alpha: alpha,
		log:   logrus.WithFields(logrus.Fields{"component": "embedding.fused", "model": enc.Name()}),
	}, nil
}

// Embed ignores mode: the local encoder has no query/document distinction.
func (p *FusedProvider) Embed(ctx context.Context, text string, image []byte, _ Mode) ([]float32, error) {
	if err := checkInput(text, image); err != nil {
		return nil, err
	}

	var textVec, imageVec []float32
	g, gctx := errgroup.WithContext(ctx)
	if strings.TrimSpace(text) != "" {
		g.Go(func() error {
			v, err := p.encodeText(gctx, text)
			textVec = v
			return err
		})
	}
	if len(image) > 0 {
		g.Go(func() error {
			v, err := p.encodeImage(gctx, image)
			imageVec = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case imageVec == nil:
		return textVec, nil
	case textVec == nil:
		return imageVec, nil
	}

	fused, err := vector.Fuse(textVec, imageVec, p.alpha)
	if errors.Is(err, vector.ErrZeroNorm) {
		p.log.WithField("alpha", p.alpha).Warn("text and image vectors cancel out; using text vector")
		return textVec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fuse: %w", core.ErrProviderUnavailable, err)
	}
	return fused, nil
}

func (p *FusedProvider) encodeText(ctx context.Context, text string) ([]float32, error) {
	v, err := p.enc.EncodeText(ctx, p.tok.Encode(text))
	if err != nil {
		return nil, fmt.Errorf("%w: encode text: %w", core.ErrProviderUnavailable, err)
	}
	return p.finish(v, "text")
}

func (p *FusedProvider) encodeImage(ctx context.Context, data []byte) ([]float32, error) {
	t, err := Preprocess(data)
	if err != nil {
		return nil, err
	}
	v, err := p.enc.EncodeImage(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%w: encode image: %w", core.ErrProviderUnavailable, err)
	}
	return p.finish(v, "image")
}

func (p *FusedProvider) finish(v []float32, modality string) ([]float32, error) {
	if len(v) != p.enc.Dimension() {
		return nil, core.Wrapf(core.ErrProviderUnavailable, "%s encoder returned %d dimensions, want %d", modality, len(v), p.enc.Dimension())
	}
	n, err := vector.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s vector: %w", core.ErrProviderUnavailable, modality, err)
	}
	return n, nil
}

func (p *FusedProvider) ModelID() string       { return p.enc.Name() }
func (p *FusedProvider) Dimension() int        { return p.enc.Dimension() }
func (p *FusedProvider) Metric() vector.Metric { return vector.Cosine }

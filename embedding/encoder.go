package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/hubenschmidt/postsearch/config"
)

// DualEncoder embeds text tokens and image tensors into the same space.
// It is loaded once and shared read-only across goroutines.
type DualEncoder interface {
	EncodeText(ctx context.Context, tokens []int) ([]float32, error)
	EncodeImage(ctx context.Context, img Tensor) ([]float32, error)
	Dimension() int
	Name() string
}

// EncoderFactory builds a DualEncoder from the local provider settings.
type EncoderFactory func(cfg config.Local) (DualEncoder, error)

var (
	encodersMu sync.RWMutex
	encoders   = map[string]EncoderFactory{
		"hash": func(cfg config.Local) (DualEncoder, error) {
			return NewHashEncoder(cfg.Dimension, cfg.Seed)
		},
	}
)

// RegisterEncoder makes a dual encoder available to the local provider by name.
func RegisterEncoder(name string, f EncoderFactory) {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	encoders[name] = f
}

// NewEncoder builds the encoder named by cfg.Encoder.
func NewEncoder(cfg config.Local) (DualEncoder, error) {
	encodersMu.RLock()
	f, ok := encoders[cfg.Encoder]
	encodersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no dual encoder registered as %q", cfg.Encoder)
	}
	enc, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("load encoder %s: %w", cfg.Encoder, err)
	}
	return enc, nil
}

const (
	poolGrid        = 16
	imageFeatures   = 3 * poolGrid * poolGrid
	imageStreamSalt = 0x696d616765
)

// HashEncoder is a deterministic random-projection dual encoder. Tokens map
// to seeded Gaussian vectors; images are average-pooled to a coarse grid and
// projected through a seeded matrix built once at construction.
type HashEncoder struct {
	dim  int
	seed uint64
	proj []float32 // imageFeatures x dim, row-major
}

func NewHashEncoder(dim int, seed int64) (*HashEncoder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	e := &HashEncoder{dim: dim, seed: uint64(seed), proj: make([]float32, imageFeatures*dim)}

	r := rand.New(rand.NewPCG(e.seed, imageStreamSalt))
	scale := 1 / math.Sqrt(float64(imageFeatures))
	for i := range e.proj {
		e.proj[i] = float32(r.NormFloat64() * scale)
	}
	return e, nil
}

func (e *HashEncoder) Dimension() int { return e.dim }

func (e *HashEncoder) Name() string {
	return fmt.Sprintf("hash-dual-%d-s%d", e.dim, e.seed)
}

func (e *HashEncoder) EncodeText(ctx context.Context, tokens []int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, e.dim)
	for _, tok := range tokens {
		if tok == 0 {
			continue
		}
		r := rand.New(rand.NewPCG(e.seed, uint64(tok)))
		for j := range out {
			out[j] += r.NormFloat64()
		}
	}
	return toFloat32(out), nil
}

func (e *HashEncoder) EncodeImage(ctx context.Context, img Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Channels != 3 || img.Height < poolGrid || img.Width < poolGrid {
		return nil, fmt.Errorf("unsupported tensor shape %dx%dx%d", img.Channels, img.Height, img.Width)
	}
	if len(img.Data) != img.Channels*img.Height*img.Width {
		return nil, fmt.Errorf("tensor data length %d does not match shape", len(img.Data))
	}

	features := poolTensor(img)
	out := make([]float64, e.dim)
	for i, f := range features {
		if f == 0 {
			continue
		}
		row := e.proj[i*e.dim : (i+1)*e.dim]
		for j, w := range row {
			out[j] += f * float64(w)
		}
	}
	return toFloat32(out), nil
}

// poolTensor averages each channel over a poolGrid x poolGrid grid of cells.
func poolTensor(t Tensor) []float64 {
	features := make([]float64, imageFeatures)
	counts := make([]int, imageFeatures)
	for c := 0; c < 3; c++ {
		for y := 0; y < t.Height; y++ {
			gy := y * poolGrid / t.Height
			for x := 0; x < t.Width; x++ {
				gx := x * poolGrid / t.Width
				k := (c*poolGrid+gy)*poolGrid + gx
				features[k] += float64(t.At(c, y, x))
				counts[k]++
			}
		}
	}
	for i := range features {
		if counts[i] > 0 {
			features[i] /= float64(counts[i])
		}
	}
	return features
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

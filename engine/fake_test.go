package engine

import (
	"context"
	"sync"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/embedding"
	"github.com/hubenschmidt/postsearch/vector"
)

type embedCall struct {
	text  string
	image []byte
	mode  embedding.Mode
}

// fakeProvider maps known texts to fixed unit vectors and everything else to e1.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []embedCall
	vectors map[string][]float32
	err     error
	model   string
	started chan struct{}
	release chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{vectors: map[string][]float32{}, model: "fake-v1"}
}

func (f *fakeProvider) Embed(ctx context.Context, text string, image []byte, mode embedding.Mode) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, embedCall{text: text, image: image, mode: mode})
	started, release, err := f.started, f.release, f.err
	vec, ok := f.vectors[text]
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, core.Wrapf(core.ErrProviderUnavailable, "%v", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		vec = []float32{1, 0, 0}
	}
	return vector.Normalize(vec)
}

func (f *fakeProvider) Calls() []embedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]embedCall(nil), f.calls...)
}

func (f *fakeProvider) ModelID() string       { return f.model }
func (f *fakeProvider) Dimension() int        { return 3 }
func (f *fakeProvider) Metric() vector.Metric { return vector.Cosine }

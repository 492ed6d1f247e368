package embedding

import (
	"context"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizerLayout(t *testing.T) {
	tok := NewTokenizer(1000)
	ids := tok.Encode("Hello, World!")

	require.Len(t, ids, ContextLength)
	assert.Equal(t, tok.StartToken(), ids[0])
	assert.Equal(t, tok.EndToken(), ids[3])
	for _, id := range ids[1:3] {
		assert.Greater(t, id, 0)
		assert.Less(t, id, tok.StartToken())
	}
	for _, id := range ids[4:] {
		assert.Zero(t, id)
	}
}

func TestTokenizerCaseInsensitive(t *testing.T) {
	tok := NewTokenizer(1000)
	assert.Equal(t, tok.Encode("hello world"), tok.Encode("HELLO   World"))
	assert.NotEqual(t, tok.Encode("hello world"), tok.Encode("world hello"))
}

func TestTokenizerTruncates(t *testing.T) {
	tok := NewTokenizer(1000)
	ids := tok.Encode(strings.Repeat("word ", 200))

	require.Len(t, ids, ContextLength)
	assert.Equal(t, tok.EndToken(), ids[ContextLength-1])
}

func TestTokenizerEmpty(t *testing.T) {
	tok := NewTokenizer(1000)
	ids := tok.Encode("...")
	assert.Equal(t, tok.StartToken(), ids[0])
	assert.Equal(t, tok.EndToken(), ids[1])
}

func TestPreprocessShapeAndNormalization(t *testing.T) {
	tensor, err := Preprocess(pngBytes(t, 300, 150, color.White))
	require.NoError(t, err)

	assert.Equal(t, 3, tensor.Channels)
	assert.Equal(t, ImageSize, tensor.Height)
	assert.Equal(t, ImageSize, tensor.Width)
	require.Len(t, tensor.Data, 3*ImageSize*ImageSize)

	for c := 0; c < 3; c++ {
		want := (1 - clipMean[c]) / clipStd[c]
		assert.InDelta(t, want, tensor.At(c, 0, 0), 1e-2)
		assert.InDelta(t, want, tensor.At(c, ImageSize-1, ImageSize-1), 1e-2)
	}
}

func TestPreprocessFlattensTransparency(t *testing.T) {
	tensor, err := Preprocess(pngBytes(t, 20, 20, color.RGBA{}))
	require.NoError(t, err)
	assert.InDelta(t, (1-clipMean[0])/clipStd[0], tensor.At(0, 100, 100), 1e-2)
}

func TestHashEncoderDeterministic(t *testing.T) {
	a, err := NewHashEncoder(32, 1)
	require.NoError(t, err)
	b, err := NewHashEncoder(32, 1)
	require.NoError(t, err)
	other, err := NewHashEncoder(32, 2)
	require.NoError(t, err)

	tokens := NewTokenizer(1000).Encode("mountain bike")
	ctx := context.Background()

	va, err := a.EncodeText(ctx, tokens)
	require.NoError(t, err)
	vb, err := b.EncodeText(ctx, tokens)
	require.NoError(t, err)
	vo, err := other.EncodeText(ctx, tokens)
	require.NoError(t, err)

	assert.Equal(t, va, vb)
	assert.NotEqual(t, va, vo)
}

func TestHashEncoderImageShape(t *testing.T) {
	enc, err := NewHashEncoder(8, 1)
	require.NoError(t, err)

	_, err = enc.EncodeImage(context.Background(), Tensor{Channels: 1, Height: 224, Width: 224, Data: make([]float32, 224*224)})
	assert.Error(t, err)

	_, err = NewHashEncoder(0, 1)
	assert.Error(t, err)
}

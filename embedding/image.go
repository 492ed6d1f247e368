package embedding

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hubenschmidt/postsearch/core"
)

const (
	// MaxImagePixels caps the decoded size of any uploaded image.
	MaxImagePixels = 24_000_000
	// MaxAspectRatio rejects degenerate strips such as 1xN images.
	MaxAspectRatio = 20
	// MaxUploadSide bounds the longer side of images re-encoded for remote providers.
	MaxUploadSide = 2048
)

// decodeImage checks the header dimensions before decoding so a small
// compressed file cannot expand into an unbounded pixel buffer.
func decodeImage(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, core.Wrapf(core.ErrInvalidInput, "decode image: %v", err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, core.Wrapf(core.ErrInvalidInput, "decode image: %v", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, core.Wrapf(core.ErrInvalidInput, "image has no pixels")
	}
	return img, nil
}

func checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 {
		return core.Wrapf(core.ErrInvalidInput, "image has no pixels")
	}
	if int64(w)*int64(h) > MaxImagePixels {
		return core.Wrapf(core.ErrInvalidInput, "image is %dx%d, over the %d pixel limit", w, h, MaxImagePixels)
	}
	if max(w, h) > MaxAspectRatio*min(w, h) {
		return core.Wrapf(core.ErrInvalidInput, "image aspect ratio %dx%d exceeds %d:1", w, h, MaxAspectRatio)
	}
	return nil
}

// scaleOnto composites the sr region of img onto an opaque white canvas of
// size w x h. The only allocation is the destination canvas.
func scaleOnto(img image.Image, sr image.Rectangle, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if sr.Dx() == w && sr.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, sr.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, sr, draw.Over, nil)
	return dst
}

// fitWithin returns w x h shrunk so the longer side is at most side.
func fitWithin(w, h, side int) (int, int) {
	if w <= side && h <= side {
		return w, h
	}
	if w >= h {
		return side, max(1, (h*side+w/2)/w)
	}
	return max(1, (w*side+h/2)/h), side
}

// pngDataURI decodes any supported format and re-encodes it as an opaque PNG
// data URI no larger than MaxUploadSide on either side.
func pngDataURI(data []byte) (string, error) {
	img, err := decodeImage(data)
	if err != nil {
		return "", err
	}
	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), MaxUploadSide)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaleOnto(img, b, w, h)); err != nil {
		return "", core.Wrapf(core.ErrInvalidInput, "encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

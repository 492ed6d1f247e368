package embedding

import "image"

// ImageSize is the square side of the encoder's image input.
const ImageSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Tensor is a dense CHW float32 image.
type Tensor struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

func (t Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.Height+y)*t.Width+x]
}

// Preprocess decodes image bytes, center-crops the largest square, scales it
// to ImageSize, and normalizes each channel with the CLIP mean and std.
func Preprocess(data []byte) (Tensor, error) {
	img, err := decodeImage(data)
	if err != nil {
		return Tensor{}, err
	}

	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	x0, y0 := b.Min.X+(b.Dx()-side)/2, b.Min.Y+(b.Dy()-side)/2
	src := scaleOnto(img, image.Rect(x0, y0, x0+side, y0+side), ImageSize, ImageSize)

	t := Tensor{Channels: 3, Height: ImageSize, Width: ImageSize, Data: make([]float32, 3*ImageSize*ImageSize)}
	plane := ImageSize * ImageSize
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			off := src.PixOffset(x, y)
			px := src.Pix[off : off+3]
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				t.Data[c*plane+y*ImageSize+x] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return t, nil
}

// Package preprocess turns uploaded image bytes into the input tensor the
// classifier was trained on.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/alz-api/internal/model"
)

var (
	// ErrDecode is returned when the bytes are not an image in a registered format.
	ErrDecode = errors.New("cannot decode image")
	// ErrUnsupportedLayout is returned for images that are neither
	// single-channel nor three-channel (alpha, CMYK, paletted).
	ErrUnsupportedLayout = errors.New("unsupported channel layout")
)

// Filter is the resampling filter used to reach the model resolution.
const Filter = resize.Bicubic

// Tensor decodes raw, resizes it to model.ImageSize square without keeping
// the aspect ratio and returns a [1, H, W, 3] float32 tensor in NHWC order.
// The format is sniffed from the content.
func Tensor(raw []byte) ([]float32, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if _, err := Channels(img); err != nil {
		return nil, fmt.Errorf("%s image: %w", format, err)
	}

	resized := resize.Resize(model.ImageSize, model.ImageSize, img, Filter)
	return pixels(resized), nil
}

// Channels reports how many color channels img carries: 1 for grayscale and
// 3 for color without alpha. Decoders return alpha-capable types such as
// lossless WebP or PNG with tRNS for plain RGB content; those count as 3 when
// every pixel is opaque. Other layouts yield ErrUnsupportedLayout.
func Channels(img image.Image) (int, error) {
	switch img := img.(type) {
	case *image.Gray, *image.Gray16:
		return 1, nil
	case *image.RGBA, *image.RGBA64, *image.YCbCr:
		return 3, nil
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA:
		if img.(interface{ Opaque() bool }).Opaque() {
			return 3, nil
		}
		return 0, fmt.Errorf("%w: %T with transparent pixels", ErrUnsupportedLayout, img)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedLayout, img)
	}
}

// pixels flattens img into HWC order. Grayscale pixels report the same value
// for R, G and B, which expands them to three channels.
func pixels(img image.Image) []float32 {
	bounds := img.Bounds()
	data := make([]float32, 0, bounds.Dx()*bounds.Dy()*model.Channels)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			data = append(data, Normalize(r), Normalize(g), Normalize(b))
		}
	}
	return data
}

// Normalize maps a 16-bit color component to the value range the model was
// trained on. EfficientNet graphs rescale internally, so the network expects
// raw 8-bit intensities in [0, 255].
func Normalize(v uint32) float32 {
	return float32(v >> 8)
}

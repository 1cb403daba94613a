package preprocess_test

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/alz-api/internal/model"
	"github.com/Brownie44l1/alz-api/internal/preprocess"
)

const tensorLen = model.ImageSize * model.ImageSize * model.Channels

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestTensor_ColorPNG(t *testing.T) {
	raw := encodePNG(t, solidRGBA(64, 48, color.RGBA{R: 200, G: 100, B: 50, A: 255}))

	data, err := preprocess.Tensor(raw)
	require.NoError(t, err)
	require.Len(t, data, tensorLen)

	for i := 0; i < len(data); i += 3 {
		assert.InDelta(t, 200, data[i], 1)
		assert.InDelta(t, 100, data[i+1], 1)
		assert.InDelta(t, 50, data[i+2], 1)
	}
}

func TestTensor_GrayscaleExpandedToThreeChannels(t *testing.T) {
	raw := encodePNG(t, solidGray(30, 90, 120))

	data, err := preprocess.Tensor(raw)
	require.NoError(t, err)
	require.Len(t, data, tensorLen)

	for i := 0; i < len(data); i += 3 {
		assert.Equal(t, data[i], data[i+1])
		assert.Equal(t, data[i], data[i+2])
		assert.InDelta(t, 120, data[i], 1)
	}
}

func TestTensor_JPEG(t *testing.T) {
	raw := encodeJPEG(t, solidRGBA(300, 200, color.RGBA{R: 10, G: 220, B: 130, A: 255}))

	data, err := preprocess.Tensor(raw)
	require.NoError(t, err)
	require.Len(t, data, tensorLen)
	for _, v := range data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(255))
	}
}

func TestTensor_Deterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: uint8(x + y), A: 255})
		}
	}
	raw := encodePNG(t, img)

	first, err := preprocess.Tensor(raw)
	require.NoError(t, err)
	second, err := preprocess.Tensor(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTensor_Errors(t *testing.T) {
	alpha := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range alpha.Pix {
		alpha.Pix[i] = 128
	}
	paletted := image.NewPaletted(image.Rect(0, 0, 8, 8), color.Palette{color.Black, color.White})

	tests := []struct {
		name    string
		raw     []byte
		wantErr error
	}{
		{name: "empty", raw: nil, wantErr: preprocess.ErrDecode},
		{name: "not an image", raw: []byte("definitely not an image"), wantErr: preprocess.ErrDecode},
		{name: "truncated png", raw: encodePNG(t, solidGray(8, 8, 1))[:20], wantErr: preprocess.ErrDecode},
		{name: "alpha channel", raw: encodePNG(t, alpha), wantErr: preprocess.ErrUnsupportedLayout},
		{name: "paletted", raw: encodePNG(t, paletted), wantErr: preprocess.ErrUnsupportedLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := preprocess.Tensor(tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, data)
		})
	}
}

func TestChannels(t *testing.T) {
	rect := image.Rect(0, 0, 1, 1)
	tests := []struct {
		name    string
		img     image.Image
		want    int
		wantErr bool
	}{
		{name: "gray", img: image.NewGray(rect), want: 1},
		{name: "gray16", img: image.NewGray16(rect), want: 1},
		{name: "rgba", img: image.NewRGBA(rect), want: 3},
		{name: "rgba64", img: image.NewRGBA64(rect), want: 3},
		{name: "ycbcr", img: image.NewYCbCr(rect, image.YCbCrSubsampleRatio420), want: 3},
		{name: "opaque nrgba", img: opaqueNRGBA(rect), want: 3},
		{name: "translucent nrgba", img: image.NewNRGBA(rect), wantErr: true},
		{name: "opaque nrgba64", img: opaqueNRGBA64(rect), want: 3},
		{name: "translucent nrgba64", img: image.NewNRGBA64(rect), wantErr: true},
		{name: "translucent nycbcra", img: image.NewNYCbCrA(rect, image.YCbCrSubsampleRatio444), wantErr: true},
		{name: "cmyk", img: image.NewCMYK(rect), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := preprocess.Channels(tt.img)
			if tt.wantErr {
				assert.ErrorIs(t, err, preprocess.ErrUnsupportedLayout)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func opaqueNRGBA(r image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(r)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func opaqueNRGBA64(r image.Rectangle) *image.NRGBA64 {
	img := image.NewNRGBA64(r)
	for i := 6; i < len(img.Pix); i += 8 {
		img.Pix[i], img.Pix[i+1] = 0xff, 0xff
	}
	return img
}

// withTRNS inserts a truecolor tRNS chunk right after IHDR. The key color is
// absent from the image, so every pixel stays opaque.
func withTRNS(t *testing.T, raw []byte, key [3]uint16) []byte {
	t.Helper()
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	require.Greater(t, len(raw), ihdrEnd)

	data := make([]byte, 6)
	for i, v := range key {
		binary.BigEndian.PutUint16(data[2*i:], v)
	}
	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	chunk = append(chunk, "tRNS"...)
	chunk = append(chunk, data...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(append([]byte("tRNS"), data...)))

	out := append([]byte{}, raw[:ihdrEnd]...)
	out = append(out, chunk...)
	return append(out, raw[ihdrEnd:]...)
}

func TestTensor_OpaqueRGBWithTransparencyChunk(t *testing.T) {
	raw := withTRNS(t, encodePNG(t, solidRGBA(16, 16, color.RGBA{R: 90, G: 60, B: 30, A: 255})), [3]uint16{1, 2, 3})

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.IsType(t, &image.NRGBA{}, decoded)

	data, err := preprocess.Tensor(raw)
	require.NoError(t, err)
	require.Len(t, data, tensorLen)
	for i := 0; i < len(data); i += 3 {
		assert.InDelta(t, 90, data[i], 1)
		assert.InDelta(t, 60, data[i+1], 1)
		assert.InDelta(t, 30, data[i+2], 1)
	}
}

func TestTensor_TransparencyChunkHittingPixels(t *testing.T) {
	raw := withTRNS(t, encodePNG(t, solidRGBA(16, 16, color.RGBA{R: 90, G: 60, B: 30, A: 255})), [3]uint16{90, 60, 30})

	data, err := preprocess.Tensor(raw)
	assert.ErrorIs(t, err, preprocess.ErrUnsupportedLayout)
	assert.Nil(t, data)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float32(0), preprocess.Normalize(0))
	assert.Equal(t, float32(255), preprocess.Normalize(0xffff))
	assert.Equal(t, float32(128), preprocess.Normalize(128*0x101))
}

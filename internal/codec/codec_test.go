package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"vsipyramid/internal/slideerr"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodeJPEG(t *testing.T) {
	src := solidImage(4, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}))

	pix, w, h, err := Decode(JPEG, buf.Bytes(), RawParams{})
	require.NoError(t, err)
	require.Equal(t, 4, w)
	require.Equal(t, 4, h)
	require.Len(t, pix, 4*4*4)
	// BGRA order, opaque alpha.
	require.Equal(t, byte(255), pix[3])
}

func TestDecodePNG(t *testing.T) {
	src := solidImage(2, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	pix, w, h, err := Decode(PNG, buf.Bytes(), RawParams{})
	require.NoError(t, err)
	require.Equal(t, 2, w)
	require.Equal(t, 2, h)
	require.Equal(t, []byte{30, 20, 10, 255}, pix[0:4])
}

func TestDecodeRawGrayscale(t *testing.T) {
	buf := []byte{10, 20, 30, 40} // 2x2 grayscale
	pix, w, h, err := Decode(RAW, buf, RawParams{Width: 2, Height: 2, Channels: 1})
	require.NoError(t, err)
	require.Equal(t, 2, w)
	require.Equal(t, 2, h)
	require.Equal(t, []byte{10, 10, 10, 255}, pix[0:4])
	require.Equal(t, []byte{40, 40, 40, 255}, pix[12:16])
}

func TestDecodeRawRGB(t *testing.T) {
	buf := []byte{
		10, 20, 30,
		40, 50, 60,
	}
	pix, w, h, err := Decode(RAW, buf, RawParams{Width: 2, Height: 1, Channels: 3})
	require.NoError(t, err)
	require.Equal(t, 2, w)
	require.Equal(t, 1, h)
	require.Equal(t, []byte{30, 20, 10, 255}, pix[0:4])
	require.Equal(t, []byte{60, 50, 40, 255}, pix[4:8])
}

func TestDecodeRawTooShort(t *testing.T) {
	_, _, _, err := Decode(RAW, []byte{1, 2, 3}, RawParams{Width: 2, Height: 2, Channels: 1})
	require.Error(t, err)
	require.True(t, slideerr.Is(err, slideerr.DecodeError))
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, _, _, err := Decode(Format(99), nil, RawParams{})
	require.Error(t, err)
	require.True(t, slideerr.Is(err, slideerr.UnsupportedError))
}

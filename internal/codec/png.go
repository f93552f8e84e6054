package codec

import (
	"bytes"
	"image/png"

	"vsipyramid/internal/slideerr"
)

func decodePNG(buf []byte) ([]byte, int, int, error) {
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, 0, 0, slideerr.Wrap(slideerr.DecodeError, err, "decoding PNG tile")
	}
	pix, w, h := toPremultipliedBGRA(img)
	return pix, w, h, nil
}

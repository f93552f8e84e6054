package codec

import (
	"bytes"
	"image/jpeg"

	"vsipyramid/internal/slideerr"
)

func decodeJPEG(buf []byte) ([]byte, int, int, error) {
	img, err := jpeg.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, 0, 0, slideerr.Wrap(slideerr.DecodeError, err, "decoding JPEG tile")
	}
	pix, w, h := toPremultipliedBGRA(img)
	return pix, w, h, nil
}

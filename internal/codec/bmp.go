package codec

import (
	"bytes"

	"golang.org/x/image/bmp"

	"vsipyramid/internal/slideerr"
)

func decodeBMP(buf []byte) ([]byte, int, int, error) {
	img, err := bmp.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, 0, 0, slideerr.Wrap(slideerr.DecodeError, err, "decoding BMP tile")
	}
	pix, w, h := toPremultipliedBGRA(img)
	return pix, w, h, nil
}

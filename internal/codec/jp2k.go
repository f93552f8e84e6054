package codec

import (
	"bytes"

	"github.com/mrjoshuak/go-jpeg2000"

	"vsipyramid/internal/slideerr"
)

func decodeJP2K(buf []byte) ([]byte, int, int, error) {
	img, err := jpeg2000.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, 0, 0, slideerr.Wrap(slideerr.DecodeError, err, "decoding JP2K tile")
	}
	pix, w, h := toPremultipliedBGRA(img)
	return pix, w, h, nil
}

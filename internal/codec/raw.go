package codec

import (
	"encoding/binary"

	"vsipyramid/internal/slideerr"
)

// decodeRaw interprets an uncompressed tile buffer directly: interleaved
// 8-bit or 32-bit samples, 1 (grayscale) or 3 (RGB) channels, alpha opaque.
func decodeRaw(buf []byte, p RawParams) ([]byte, int, int, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, 0, 0, slideerr.New(slideerr.DecodeError, "raw tile missing dimensions")
	}
	if p.Channels != 1 && p.Channels != 3 {
		return nil, 0, 0, slideerr.New(slideerr.DecodeError, "unexpected raw channel count %d", p.Channels)
	}

	sampleWidth := 1
	if p.Is32Bit {
		sampleWidth = 4
	}
	stride := p.Channels * sampleWidth
	want := p.Width * p.Height * stride
	if len(buf) < want {
		return nil, 0, 0, slideerr.New(slideerr.DecodeError, "raw tile too short: have %d want %d", len(buf), want)
	}

	pix := make([]byte, p.Width*p.Height*4)
	for i := 0; i < p.Width*p.Height; i++ {
		src := buf[i*stride : (i+1)*stride]
		var r, g, b byte
		if p.Channels == 1 {
			r = sample(src, 0, p.Is32Bit)
			g, b = r, r
		} else {
			r = sample(src, 0, p.Is32Bit)
			g = sample(src, 1, p.Is32Bit)
			b = sample(src, 2, p.Is32Bit)
		}
		dst := pix[i*4 : i*4+4]
		dst[0], dst[1], dst[2], dst[3] = b, g, r, 255
	}
	return pix, p.Width, p.Height, nil
}

func sample(src []byte, channel int, is32Bit bool) byte {
	if !is32Bit {
		return src[channel]
	}
	v := binary.LittleEndian.Uint32(src[channel*4 : channel*4+4])
	return byte(v >> 24)
}

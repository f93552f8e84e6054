// Package argb converts premultiplied, cairo-ordered ARGB32 pixel buffers
// (BGRA byte order on little-endian, as produced by internal/codec and
// internal/grid) into straight-alpha RGBA, the byte order most downstream
// image encoders (PNG, JPEG via stdlib/vips) expect. Grounded on
// original_source/python/lib/argb2rgba.c.
package argb

// Byte offsets within one cairo ARGB32 pixel (native, little-endian order).
const (
	offB = 0
	offG = 1
	offR = 2
	offA = 3
)

// ToRGBA unpremultiplies and reorders buf in place. buf's length must be a
// multiple of 4; each 4-byte pixel is read as cairo's premultiplied BGRA and
// rewritten as straight RGBA.
func ToRGBA(buf []byte) {
	for i := 0; i+4 <= len(buf); i += 4 {
		px := buf[i : i+4 : i+4]
		a := px[offA]
		b, g, r := px[offB], px[offG], px[offR]

		if a > 0 && a < 255 {
			r = unpremultiply(r, a)
			g = unpremultiply(g, a)
			b = unpremultiply(b, a)
		}

		px[0] = r
		px[1] = g
		px[2] = b
		px[3] = a
	}
}

// unpremultiply divides an 8-bit premultiplied channel value by alpha,
// rounding to nearest and clamping to 255 (premultiplied data can carry
// rounding error that pushes a channel fractionally above its alpha).
func unpremultiply(c, a byte) byte {
	v := (uint32(c)*255 + uint32(a)/2) / uint32(a)
	if v > 255 {
		v = 255
	}
	return byte(v)
}

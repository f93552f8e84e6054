// Package grid decomposes a pixel-region request into the set of tiles that
// cover it and composites each tile's decoded pixels onto a caller-owned
// surface. Grounded on _openslide_grid_paint_region (referenced throughout
// original_source/src/openslide-vendor-olympus.c) and the teacher's
// RenderTile extract/resize/pad pipeline shape.
package grid

// Pixels is a premultiplied, cairo-ordered ARGB32 surface (BGRA byte order
// on little-endian). Go's stdlib image.RGBA is straight-alpha and cannot
// represent this wire format, so the repo carries this small bespoke type
// instead of reaching for image.Image.
type Pixels struct {
	W, H int
	Pix  []byte // len == W*H*4, row-major, stride W*4
}

// NewPixels allocates a zeroed (fully transparent) surface.
func NewPixels(w, h int) *Pixels {
	return &Pixels{W: w, H: h, Pix: make([]byte, w*h*4)}
}

// Stride is the byte width of one row.
func (p *Pixels) Stride() int {
	return p.W * 4
}

// At returns the 4-byte pixel slice at (x, y). Callers must ensure the
// coordinate is in bounds.
func (p *Pixels) At(x, y int) []byte {
	off := y*p.Stride() + x*4
	return p.Pix[off : off+4 : off+4]
}

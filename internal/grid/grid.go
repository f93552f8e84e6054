package grid

import "vsipyramid/internal/slideerr"

// TileContext identifies one tile a Grid needs decoded pixels for.
type TileContext struct {
	Level    uint32
	Channel  uint32
	Col, Row uint32
}

// TileReader resolves and decodes one tile, returning its premultiplied
// BGRA32 pixels (tileW*tileH*4 bytes) and its actual dimensions — which may
// be smaller than the grid's nominal tile size at the right/bottom edge of
// a level.
type TileReader func(ctx TileContext) (pix []byte, tileW, tileH int, err error)

// Grid decomposes a rectangular pixel-region request, expressed in a single
// level's pixel coordinate space, into the tiles that cover it.
type Grid struct {
	tileW, tileH int
	read         TileReader
}

// New builds a Grid over tiles of the given nominal size, resolved by read.
func New(tileW, tileH int, read TileReader) *Grid {
	return &Grid{tileW: tileW, tileH: tileH, read: read}
}

// PaintRegion composites the region [x, x+w) x [y, y+h) of the given level
// onto dst starting at (dstX, dstY), fetching and clipping each overlapping
// tile in turn. It returns the first error any tile read produces (first-
// error-wins; partially painted output on error is not meaningful to the
// caller and should be discarded).
func (g *Grid) PaintRegion(dst *Pixels, dstX, dstY int, level, channel uint32, x, y, w, h int) error {
	if w <= 0 || h <= 0 {
		return slideerr.New(slideerr.InvalidArgument, "non-positive region size %dx%d", w, h)
	}

	firstCol := x / g.tileW
	firstRow := y / g.tileH
	lastCol := (x + w - 1) / g.tileW
	lastRow := (y + h - 1) / g.tileH

	for row := firstRow; row <= lastRow; row++ {
		for col := firstCol; col <= lastCol; col++ {
			pix, tileW, tileH, err := g.read(TileContext{Level: level, Channel: channel, Col: uint32(col), Row: uint32(row)})
			if err != nil {
				return err
			}

			tileOriginX := col * g.tileW
			tileOriginY := row * g.tileH

			// Intersection of the requested region and this tile, in
			// level-pixel coordinates.
			srcX0 := max(x, tileOriginX)
			srcY0 := max(y, tileOriginY)
			srcX1 := min(x+w, tileOriginX+tileW)
			srcY1 := min(y+h, tileOriginY+tileH)
			if srcX0 >= srcX1 || srcY0 >= srcY1 {
				continue
			}

			paintTile(dst, dstX, dstY, x, y, pix, tileW, tileOriginX, tileOriginY, srcX0, srcY0, srcX1, srcY1)
		}
	}
	return nil
}

// max/min: go1.21+ builtins cover these; no helpers needed here.

// paintTile copies the rectangle [srcX0,srcX1) x [srcY0,srcY1) (in level
// coordinates) from one tile's pixel buffer into dst, translating from
// level coordinates to the tile's local buffer and to dst's local origin.
func paintTile(dst *Pixels, dstX, dstY, regionX, regionY int, tilePix []byte, tileStrideW, tileOriginX, tileOriginY, srcX0, srcY0, srcX1, srcY1 int) {
	tileStride := tileStrideW * 4
	for row := srcY0; row < srcY1; row++ {
		localY := row - tileOriginY
		dstRow := dstY + (row - regionY)
		if dstRow < 0 || dstRow >= dst.H {
			continue
		}
		srcRowOff := localY * tileStride
		for col := srcX0; col < srcX1; col++ {
			localX := col - tileOriginX
			dstCol := dstX + (col - regionX)
			if dstCol < 0 || dstCol >= dst.W {
				continue
			}
			srcOff := srcRowOff + localX*4
			copy(dst.At(dstCol, dstRow), tilePix[srcOff:srcOff+4])
		}
	}
}

// Package deepzoom implements the DeepZoom tiling engine of spec.md §4.H: a
// power-of-two tile pyramid layered on top of any opened slide, with
// configurable tile size, edge overlap, and active-area clipping. Grounded
// on deepzoom_open/deepzoom_get_tile_info/deepzoom_get_tile in
// original_source/python/lib/deepzoom.c.
package deepzoom

import (
	"math"
	"strconv"

	"vsipyramid/internal/grid"
	"vsipyramid/internal/slide"
	"vsipyramid/internal/slideerr"
)

// Dimensions is a pair of pixel extents, mirroring the source's
// dimensions_t (used for both level sizes and tile-grid counts).
type Dimensions struct {
	W, H int64
}

// offset is a pair of level-0 pixel coordinates.
type offset struct {
	X, Y float64
}

// DeepZoom wraps an opened slide.Slide and presents it as a DeepZoom
// pyramid. It takes ownership of the wrapped slide: Close releases both.
type DeepZoom struct {
	s           *slide.Slide
	tileSize    int
	overlap     int
	limitBounds bool

	// Per-slide-level state, precomputed at Open.
	lDimensions    []Dimensions // possibly bounds-scaled
	l0LDownsamples []float64
	l0Offset       offset

	// Per-DZ-level state, precomputed at Open.
	dzLevels         int
	zDimensions      []Dimensions
	tDimensions      []Dimensions
	slideFromDZLevel []int
	lZDownsamples    []float64
}

// Open wraps s as a DeepZoom pyramid of square tiles of side tileSize, each
// grown by overlap pixels on every interior edge. When limitBounds is true
// and the slide declares a non-empty bounds rectangle, the pyramid is
// cropped to that rectangle instead of the full level-0 plane.
func Open(s *slide.Slide, tileSize, overlap int, limitBounds bool) (*DeepZoom, error) {
	if tileSize <= 0 {
		return nil, slideerr.New(slideerr.InvalidArgument, "tile size must be positive, got %d", tileSize)
	}

	dz := &DeepZoom{
		s:           s,
		tileSize:    tileSize,
		overlap:     overlap,
		limitBounds: limitBounds,
	}

	levelCount := s.LevelCount()
	dz.lDimensions = make([]Dimensions, levelCount)
	dz.l0LDownsamples = make([]float64, levelCount)

	l0W, l0H, err := s.LevelDimensions(0)
	if err != nil {
		return nil, err
	}

	scaleX, scaleY := 1.0, 1.0
	if limitBounds {
		if px, ok := s.PropertyValue("openslide.bounds-x"); ok {
			dz.l0Offset.X = parseBound(px)
		}
		if py, ok := s.PropertyValue("openslide.bounds-y"); ok {
			dz.l0Offset.Y = parseBound(py)
		}
		if pw, ok := s.PropertyValue("openslide.bounds-width"); ok {
			scaleX = parseBound(pw) / l0W
		}
		if ph, ok := s.PropertyValue("openslide.bounds-height"); ok {
			scaleY = parseBound(ph) / l0H
		}
	}

	for i := 0; i < levelCount; i++ {
		w, h, err := s.LevelDimensions(i)
		if err != nil {
			return nil, err
		}
		dz.lDimensions[i] = Dimensions{
			W: int64(math.Ceil(w * scaleX)),
			H: int64(math.Ceil(h * scaleY)),
		}
		ds, err := s.LevelDownsample(i)
		if err != nil {
			return nil, err
		}
		dz.l0LDownsamples[i] = ds
	}

	dz.dzLevels = dzLevelCount(dz.lDimensions[0].W, dz.lDimensions[0].H)
	dz.zDimensions = dzLevelDimensions(dz.dzLevels, dz.lDimensions[0])
	dz.tDimensions = make([]Dimensions, dz.dzLevels)
	for i := 0; i < dz.dzLevels; i++ {
		zd := dz.zDimensions[i]
		dz.tDimensions[i] = Dimensions{
			W: ceilDiv(zd.W, int64(tileSize)),
			H: ceilDiv(zd.H, int64(tileSize)),
		}
	}

	dz.slideFromDZLevel = make([]int, dz.dzLevels)
	dz.lZDownsamples = make([]float64, dz.dzLevels)
	for i := 0; i < dz.dzLevels; i++ {
		l0ZDownsample := math.Pow(2, float64(dz.dzLevels-i-1))
		best := s.BestLevelForDownsample(l0ZDownsample)
		dz.slideFromDZLevel[i] = best
		dz.lZDownsamples[i] = l0ZDownsample / dz.l0LDownsamples[best]
	}

	return dz, nil
}

// parseBound parses a bounds/mpp property value. strtod in the source is
// locale-dependent (decimal comma locales parse "1,5" as 1); ParseFloat is
// always "."-decimal. A malformed value is treated as 0, matching strtod's
// behavior on a string with no convertible prefix.
func parseBound(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func dzLevelCount(l0W, l0H int64) int {
	count := 1
	w, h := l0W, l0H
	for w > 1 || h > 1 {
		w = ceilHalf(w)
		h = ceilHalf(h)
		count++
	}
	return count
}

func dzLevelDimensions(dzLevels int, l0 Dimensions) []Dimensions {
	z := make([]Dimensions, dzLevels)
	w, h := l0.W, l0.H
	for i := dzLevels - 1; i >= 0; i-- {
		z[i] = Dimensions{W: w, H: h}
		w = ceilHalf(w)
		h = ceilHalf(h)
	}
	return z
}

func ceilHalf(v int64) int64 {
	return max(1, int64(math.Ceil(float64(v)*0.5)))
}

func ceilDiv(v, d int64) int64 {
	return int64(math.Ceil(float64(v) / float64(d)))
}

// Close releases the wrapped slide.
func (dz *DeepZoom) Close() error {
	return dz.s.Close()
}

// GetLevelCount returns the number of DeepZoom levels.
func (dz *DeepZoom) GetLevelCount() int {
	return dz.dzLevels
}

// GetPlaneCount returns the wrapped slide's plane count.
func (dz *DeepZoom) GetPlaneCount() int {
	return dz.s.PlaneCount()
}

// GetLevelTiles returns the tile-grid extent of every DeepZoom level.
func (dz *DeepZoom) GetLevelTiles() []Dimensions {
	out := make([]Dimensions, len(dz.tDimensions))
	copy(out, dz.tDimensions)
	return out
}

// GetLevelDimensions returns the pixel extent of every DeepZoom level.
func (dz *DeepZoom) GetLevelDimensions() []Dimensions {
	out := make([]Dimensions, len(dz.zDimensions))
	copy(out, dz.zDimensions)
	return out
}

// GetTileCount returns the total number of tiles across every level.
func (dz *DeepZoom) GetTileCount() int64 {
	var n int64
	for _, d := range dz.tDimensions {
		n += d.W * d.H
	}
	return n
}

// GetMicronPerPixel returns the slide's level-0 micron-per-pixel scale, or
// (0, 0) if the slide does not report it.
func (dz *DeepZoom) GetMicronPerPixel() (float64, float64) {
	mppx, okx := dz.s.PropertyValue("openslide.mpp-x")
	mppy, oky := dz.s.PropertyValue("openslide.mpp-y")
	if !okx || !oky {
		return 0, 0
	}
	return parseBound(mppx), parseBound(mppy)
}

// GetL0Dimensions returns the (possibly bounds-cropped) level-0 pixel
// extent used to build the pyramid.
func (dz *DeepZoom) GetL0Dimensions() (int64, int64) {
	d := dz.lDimensions[0]
	return d.W, d.H
}

// GetPropertyNames delegates to the wrapped slide.
func (dz *DeepZoom) GetPropertyNames() []string {
	return dz.s.PropertyNames()
}

// GetPropertyValue delegates to the wrapped slide.
func (dz *DeepZoom) GetPropertyValue(name string) (string, bool) {
	return dz.s.PropertyValue(name)
}

// GetTileInfo computes the slide-level region a DeepZoom tile is rendered
// from: the level-0 top-left pixel, the slide level to read, the read size
// in that level's pixel space, and the tile's own (overlap-inclusive)
// pixel size. An out-of-range (level, col, row) returns an error and all
// zero values.
func (dz *DeepZoom) GetTileInfo(level, col, row int) (x, y int64, slideLevel int, outW, outH int64, scaleW, scaleH int64, err error) {
	if level < 0 || level >= dz.dzLevels {
		return 0, 0, 0, 0, 0, 0, slideerr.New(slideerr.InvalidArgument, "deepzoom level %d out of range [0,%d)", level, dz.dzLevels)
	}
	tiles := dz.tDimensions[level]
	if col < 0 || int64(col) >= tiles.W {
		return 0, 0, 0, 0, 0, 0, slideerr.New(slideerr.InvalidArgument, "tile col %d out of range [0,%d)", col, tiles.W)
	}
	if row < 0 || int64(row) >= tiles.H {
		return 0, 0, 0, 0, 0, 0, slideerr.New(slideerr.InvalidArgument, "tile row %d out of range [0,%d)", row, tiles.H)
	}

	slideLevel = dz.slideFromDZLevel[level]
	zd := dz.zDimensions[level]
	lZDownsample := dz.lZDownsamples[level]

	overlapTLX, overlapBRX := int64(0), int64(0)
	if col > 0 {
		overlapTLX = int64(dz.overlap)
	}
	if int64(col) != tiles.W-1 {
		overlapBRX = int64(dz.overlap)
	}
	overlapTLY, overlapBRY := int64(0), int64(0)
	if row > 0 {
		overlapTLY = int64(dz.overlap)
	}
	if int64(row) != tiles.H-1 {
		overlapBRY = int64(dz.overlap)
	}

	zSizeW := min(int64(dz.tileSize), zd.W-int64(dz.tileSize)*int64(col)) + overlapTLX + overlapBRX
	zSizeH := min(int64(dz.tileSize), zd.H-int64(dz.tileSize)*int64(row)) + overlapTLY + overlapBRY

	zLocX := int64(dz.tileSize) * int64(col)
	zLocY := int64(dz.tileSize) * int64(row)

	lLocX := float64(zLocX-overlapTLX) * lZDownsample
	lLocY := float64(zLocY-overlapTLY) * lZDownsample

	l0LocX := lLocX*dz.l0LDownsamples[slideLevel] + dz.l0Offset.X
	l0LocY := lLocY*dz.l0LDownsamples[slideLevel] + dz.l0Offset.Y

	slideDims := dz.lDimensions[slideLevel]
	lSizeW := min(int64(math.Ceil(float64(zSizeW)*lZDownsample)), slideDims.W-int64(math.Ceil(lLocX)))
	lSizeH := min(int64(math.Ceil(float64(zSizeH)*lZDownsample)), slideDims.H-int64(math.Ceil(lLocY)))

	return int64(math.Floor(l0LocX)), int64(math.Floor(l0LocY)), slideLevel, lSizeW, lSizeH, zSizeW, zSizeH, nil
}

// GetTile reads the slide region for tile (level, col, row) and writes its
// pixels into dst, which must be at least outW*outH*4 bytes (premultiplied
// BGRA32, per internal/grid.Pixels). The caller owns dst; GetTile never
// allocates the returned tile on the caller's behalf.
func (dz *DeepZoom) GetTile(dst []byte, plane, level, col, row int) error {
	x, y, slideLevel, outW, outH, _, _, err := dz.GetTileInfo(level, col, row)
	if err != nil {
		return err
	}
	if outW <= 0 || outH <= 0 {
		return slideerr.New(slideerr.InvalidArgument, "tile (%d,%d,%d) has non-positive size %dx%d", level, col, row, outW, outH)
	}
	need := int(outW) * int(outH) * 4
	if len(dst) < need {
		return slideerr.New(slideerr.InvalidArgument, "destination buffer too small: need %d bytes, have %d", need, len(dst))
	}

	// GetTileInfo reports a level-0 location; ReadRegion takes coordinates
	// in slideLevel's own pixel space.
	ds := dz.l0LDownsamples[slideLevel]
	lx := int(math.Floor(float64(x) / ds))
	ly := int(math.Floor(float64(y) / ds))

	region := grid.NewPixels(int(outW), int(outH))
	if err := dz.s.ReadRegion(region, 0, 0, slideLevel, plane, lx, ly, int(outW), int(outH)); err != nil {
		return err
	}
	copy(dst, region.Pix)
	return nil
}

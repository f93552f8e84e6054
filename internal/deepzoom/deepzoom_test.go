package deepzoom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vsipyramid/internal/grid"
	"vsipyramid/internal/slide"
)

// fakeBackend is a synthetic single- or multi-level slide.Backend for
// exercising the DeepZoom engine without a real payload file. PaintRegion
// fills every painted pixel with a fixed gray value so tests can assert
// GetTile actually reached the slide.
type fakeBackend struct {
	levels     []slide.Level
	planeCount int
	properties map[string]string
	fill       byte
}

func (b *fakeBackend) PaintRegion(dst *grid.Pixels, dstX, dstY, level, channel, x, y, w, h int) error {
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			px := dst.At(dstX+col, dstY+row)
			px[0], px[1], px[2], px[3] = b.fill, b.fill, b.fill, 255
		}
	}
	return nil
}
func (b *fakeBackend) Levels() []slide.Level                    { return b.levels }
func (b *fakeBackend) PlaneCount() int                          { return b.planeCount }
func (b *fakeBackend) Properties() map[string]string            { return b.properties }
func (b *fakeBackend) AssociatedImages() map[string]*grid.Pixels { return nil }
func (b *fakeBackend) Close() error                             { return nil }

func newFakeSlide(w, h float64, props map[string]string) *slide.Slide {
	backend := &fakeBackend{
		levels:     []slide.Level{{Width: w, Height: h, Downsample: 1}},
		planeCount: 1,
		properties: props,
		fill:       42,
	}
	return slide.New(backend, nil)
}

func TestOpenComputesLevelCountAndDimensions(t *testing.T) {
	s := newFakeSlide(1024, 512, nil)
	dz, err := Open(s, 254, 1, false)
	require.NoError(t, err)

	require.Equal(t, 11, dz.GetLevelCount())

	dims := dz.GetLevelDimensions()
	require.Equal(t, Dimensions{W: 1024, H: 512}, dims[10])
	require.Equal(t, Dimensions{W: 1, H: 1}, dims[0])

	tiles := dz.GetLevelTiles()
	require.Equal(t, Dimensions{W: 5, H: 3}, tiles[10])
}

func TestLevelDimensionsHalveByCeiling(t *testing.T) {
	s := newFakeSlide(1024, 512, nil)
	dz, err := Open(s, 254, 1, false)
	require.NoError(t, err)

	dims := dz.GetLevelDimensions()
	for i := 0; i < dz.GetLevelCount()-1; i++ {
		wantW := max(int64(1), ceilDiv(dims[i+1].W, 2))
		wantH := max(int64(1), ceilDiv(dims[i+1].H, 2))
		require.Equal(t, wantW, dims[i].W, "level %d width", i)
		require.Equal(t, wantH, dims[i].H, "level %d height", i)
	}
	require.Equal(t, Dimensions{W: 1, H: 1}, dims[0])
}

func TestGetTileInfoTopLeftTile(t *testing.T) {
	s := newFakeSlide(1024, 512, nil)
	dz, err := Open(s, 254, 1, false)
	require.NoError(t, err)

	x, y, lvl, outW, outH, scaleW, scaleH, err := dz.GetTileInfo(10, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), x)
	require.Equal(t, int64(0), y)
	require.Equal(t, 0, lvl)
	require.Equal(t, int64(255), outW)
	require.Equal(t, int64(255), outH)
	require.Equal(t, int64(255), scaleW)
	require.Equal(t, int64(255), scaleH)
}

func TestGetTileInfoRejectsOutOfRangeIndices(t *testing.T) {
	s := newFakeSlide(1024, 512, nil)
	dz, err := Open(s, 254, 1, false)
	require.NoError(t, err)

	_, _, _, _, _, _, _, err = dz.GetTileInfo(dz.GetLevelCount(), 0, 0)
	require.Error(t, err)

	tiles := dz.GetLevelTiles()[10]
	_, _, _, _, _, _, _, err = dz.GetTileInfo(10, int(tiles.W), 0)
	require.Error(t, err)
}

func TestGetTileWritesIntoCallerBuffer(t *testing.T) {
	s := newFakeSlide(8, 8, nil)
	dz, err := Open(s, 4, 0, false)
	require.NoError(t, err)

	_, _, _, outW, outH, _, _, err := dz.GetTileInfo(dz.GetLevelCount()-1, 0, 0)
	require.NoError(t, err)

	dst := make([]byte, outW*outH*4)
	require.NoError(t, dz.GetTile(dst, 0, dz.GetLevelCount()-1, 0, 0))
	require.Equal(t, []byte{42, 42, 42, 255}, dst[0:4])
}

func TestGetTileRejectsUndersizedBuffer(t *testing.T) {
	s := newFakeSlide(8, 8, nil)
	dz, err := Open(s, 4, 0, false)
	require.NoError(t, err)

	dst := make([]byte, 1)
	err = dz.GetTile(dst, 0, dz.GetLevelCount()-1, 0, 0)
	require.Error(t, err)
}

func TestLimitBoundsScalesLevelDimensions(t *testing.T) {
	props := map[string]string{
		"openslide.bounds-x":      "10",
		"openslide.bounds-y":      "20",
		"openslide.bounds-width":  "512",
		"openslide.bounds-height": "256",
	}
	s := newFakeSlide(1024, 512, props)
	dz, err := Open(s, 254, 0, true)
	require.NoError(t, err)

	w, h := dz.GetL0Dimensions()
	require.Equal(t, int64(512), w)
	require.Equal(t, int64(256), h)
}

func TestGetMicronPerPixelDefaultsToZero(t *testing.T) {
	s := newFakeSlide(8, 8, nil)
	dz, err := Open(s, 4, 0, false)
	require.NoError(t, err)

	mppx, mppy := dz.GetMicronPerPixel()
	require.Equal(t, 0.0, mppx)
	require.Equal(t, 0.0, mppy)
}

func TestGetMicronPerPixelParsesProperties(t *testing.T) {
	s := newFakeSlide(8, 8, map[string]string{
		"openslide.mpp-x": "0.25",
		"openslide.mpp-y": "0.26",
	})
	dz, err := Open(s, 4, 0, false)
	require.NoError(t, err)

	mppx, mppy := dz.GetMicronPerPixel()
	require.Equal(t, 0.25, mppx)
	require.Equal(t, 0.26, mppy)
}

func TestGetTileCountSumsAcrossLevels(t *testing.T) {
	s := newFakeSlide(1024, 512, nil)
	dz, err := Open(s, 254, 1, false)
	require.NoError(t, err)

	var want int64
	for _, d := range dz.GetLevelTiles() {
		want += d.W * d.H
	}
	require.Equal(t, want, dz.GetTileCount())
}

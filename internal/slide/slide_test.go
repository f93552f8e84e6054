package slide

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vsipyramid/internal/grid"
)

type fakeBackend struct {
	levels     []Level
	planes     int
	props      map[string]string
	assoc      map[string]*grid.Pixels
	paintErr   error
	paintCalls int
	closeErr   error
	closeCalls int
}

func (f *fakeBackend) PaintRegion(dst *grid.Pixels, dstX, dstY, level, channel, x, y, w, h int) error {
	f.paintCalls++
	return f.paintErr
}
func (f *fakeBackend) Levels() []Level                            { return f.levels }
func (f *fakeBackend) PlaneCount() int                            { return f.planes }
func (f *fakeBackend) Properties() map[string]string              { return f.props }
func (f *fakeBackend) AssociatedImages() map[string]*grid.Pixels  { return f.assoc }
func (f *fakeBackend) Close() error                               { f.closeCalls++; return f.closeErr }

func newTestSlide() (*Slide, *fakeBackend) {
	fb := &fakeBackend{
		levels: []Level{
			{Width: 4, Height: 4, Downsample: 1},
			{Width: 2, Height: 2, Downsample: 2},
			{Width: 1, Height: 1, Downsample: 4},
		},
		planes: 1,
		props:  map[string]string{"openslide.mpp-x": "0.25"},
		assoc:  map[string]*grid.Pixels{"macro": grid.NewPixels(2, 2)},
	}
	return New(fb, map[string]string{"vendor": "olympus-vsi"}), fb
}

func TestLevelDimensionsAndDownsample(t *testing.T) {
	s, _ := newTestSlide()
	require.Equal(t, 3, s.LevelCount())

	w, h, err := s.LevelDimensions(0)
	require.NoError(t, err)
	require.Equal(t, 4.0, w)
	require.Equal(t, 4.0, h)

	_, _, err = s.LevelDimensions(99)
	require.Error(t, err)

	ds, err := s.LevelDownsample(1)
	require.NoError(t, err)
	require.Equal(t, 2.0, ds)
}

func TestBestLevelForDownsample(t *testing.T) {
	s, _ := newTestSlide()
	require.Equal(t, 0, s.BestLevelForDownsample(1))
	require.Equal(t, 1, s.BestLevelForDownsample(3))
	require.Equal(t, 2, s.BestLevelForDownsample(10))
}

func TestPropertiesMergeBackendAndExtra(t *testing.T) {
	s, _ := newTestSlide()
	v, ok := s.PropertyValue("openslide.mpp-x")
	require.True(t, ok)
	require.Equal(t, "0.25", v)

	v, ok = s.PropertyValue("vendor")
	require.True(t, ok)
	require.Equal(t, "olympus-vsi", v)
}

func TestAssociatedImage(t *testing.T) {
	s, _ := newTestSlide()
	img, ok := s.AssociatedImage("macro")
	require.True(t, ok)
	require.Equal(t, 2, img.W)

	_, ok = s.AssociatedImage("missing")
	require.False(t, ok)
}

func TestReadRegionRejectsOutOfRangeLevel(t *testing.T) {
	s, _ := newTestSlide()
	dst := grid.NewPixels(4, 4)
	err := s.ReadRegion(dst, 0, 0, 99, 0, 0, 0, 4, 4)
	require.Error(t, err)
}

func TestReadRegionFailsFastWhenErrored(t *testing.T) {
	s, fb := newTestSlide()
	s.MarkErrored(errors.New("open failed"))

	dst := grid.NewPixels(4, 4)
	err := s.ReadRegion(dst, 0, 0, 0, 0, 0, 0, 4, 4)
	require.Error(t, err)
	require.Equal(t, 0, fb.paintCalls, "errored slide must not touch the backend")
}

func TestReadRegionTransientErrorDoesNotPoisonSlide(t *testing.T) {
	s, fb := newTestSlide()
	fb.paintErr = errors.New("decode failed")

	dst := grid.NewPixels(4, 4)
	err := s.ReadRegion(dst, 0, 0, 0, 0, 0, 0, 4, 4)
	require.Error(t, err)
	require.NoError(t, s.Error(), "a tile-level read error must not set the slide error cell")
}

func TestCloseIsIdempotent(t *testing.T) {
	s, fb := newTestSlide()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, fb.closeCalls)
}

func TestCloseAggregatesError(t *testing.T) {
	s, fb := newTestSlide()
	fb.closeErr = errors.New("unmap failed")
	err := s.Close()
	require.Error(t, err)
	require.ErrorIs(t, err, fb.closeErr)
}

package slidescan

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vsipyramid/internal/tilecache"
)

const (
	testSISHeaderSize = 64
	testETSHeaderSize = 228
	testTileRecSize   = 36
)

// writeSyntheticETS writes a minimal single-tile ETS file (the ets
// package's Scenario 1 uses four tiles; this helper needs only one).
func writeSyntheticETS(t *testing.T, dir, name string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetRGBA(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	var tileBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&tileBuf, img, &jpeg.Options{Quality: 100}))
	tile := tileBuf.Bytes()

	etsOffset := int64(testSISHeaderSize)
	tileDirOffset := etsOffset + testETSHeaderSize
	payloadOffset := tileDirOffset + testTileRecSize

	buf := make([]byte, int(payloadOffset)+len(tile))

	copy(buf[0:4], "SIS\x00")
	binary.LittleEndian.PutUint32(buf[4:8], testSISHeaderSize)
	binary.LittleEndian.PutUint32(buf[8:12], 1)
	binary.LittleEndian.PutUint32(buf[12:16], 4)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(etsOffset))
	binary.LittleEndian.PutUint32(buf[24:28], testETSHeaderSize)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(tileDirOffset))
	binary.LittleEndian.PutUint32(buf[40:44], 1)

	e := buf[etsOffset : etsOffset+testETSHeaderSize]
	copy(e[0:4], "ETS\x00")
	binary.LittleEndian.PutUint32(e[4:8], 1)
	binary.LittleEndian.PutUint32(e[8:12], 2)
	binary.LittleEndian.PutUint32(e[12:16], 1)
	binary.LittleEndian.PutUint32(e[16:20], 4)
	binary.LittleEndian.PutUint32(e[20:24], 2)
	binary.LittleEndian.PutUint32(e[24:28], 80)
	binary.LittleEndian.PutUint32(e[28:32], 2)
	binary.LittleEndian.PutUint32(e[32:36], 2)
	binary.LittleEndian.PutUint32(e[36:40], 1)

	rec := buf[tileDirOffset : tileDirOffset+testTileRecSize]
	binary.LittleEndian.PutUint32(rec[4:8], 0)
	binary.LittleEndian.PutUint32(rec[8:12], 0)
	binary.LittleEndian.PutUint32(rec[12:16], 0)
	binary.LittleEndian.PutUint32(rec[16:20], 0)
	binary.LittleEndian.PutUint64(rec[20:28], uint64(payloadOffset))
	binary.LittleEndian.PutUint32(rec[28:32], uint32(len(tile)))

	copy(buf[payloadOffset:], tile)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestScanFindsETSRootsAndWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	writeSyntheticETS(t, dir, "a.ets")

	cache, err := tilecache.New(16)
	require.NoError(t, err)
	s := New(dir, cache, zap.NewNop())

	require.NoError(t, s.Scan())
	slides := s.Slides()
	require.Len(t, slides, 1)
	require.Equal(t, "a.ets", slides[0].Filename)
	require.Equal(t, "ets", slides[0].Format)
	require.Equal(t, 1, slides[0].LevelCount)

	_, err = os.Stat(filepath.Join(dir, "a.ets.meta.json"))
	require.NoError(t, err)
}

func TestScanIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	writeSyntheticETS(t, dir, "a.ets")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	cache, err := tilecache.New(16)
	require.NoError(t, err)
	s := New(dir, cache, zap.NewNop())

	require.NoError(t, s.Scan())
	require.Len(t, s.Slides(), 1)
}

func TestScanReusesSidecarWithoutReopening(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticETS(t, dir, "a.ets")

	cache, err := tilecache.New(16)
	require.NoError(t, err)
	s := New(dir, cache, zap.NewNop())
	require.NoError(t, s.Scan())
	first := s.Slides()[0]

	// Corrupt the slide file; a second scan should still succeed because
	// it trusts the sidecar instead of reopening the file.
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	require.NoError(t, s.Scan())
	second := s.Slides()[0]
	require.Equal(t, first, second)
}

func TestScanDeletesOrphanedSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticETS(t, dir, "a.ets")

	cache, err := tilecache.New(16)
	require.NoError(t, err)
	s := New(dir, cache, zap.NewNop())
	require.NoError(t, s.Scan())

	require.NoError(t, os.Remove(path))
	require.NoError(t, s.Scan())

	require.Empty(t, s.Slides())
	_, err = os.Stat(path + ".meta.json")
	require.True(t, os.IsNotExist(err))
}

func TestSlideByIDAndPathByID(t *testing.T) {
	dir := t.TempDir()
	writeSyntheticETS(t, dir, "a.ets")

	cache, err := tilecache.New(16)
	require.NoError(t, err)
	s := New(dir, cache, zap.NewNop())
	require.NoError(t, s.Scan())

	id := s.Slides()[0].ID
	require.NotNil(t, s.SlideByID(id))
	require.Equal(t, filepath.Join(dir, "a.ets"), s.SlidePathByID(id))
	require.Nil(t, s.SlideByID("does-not-exist"))
}

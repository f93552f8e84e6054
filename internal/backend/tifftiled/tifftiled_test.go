package tifftiled

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vsipyramid/internal/grid"
	"vsipyramid/internal/tilecache"
)

// entrySpec describes one 12-byte classic-TIFF IFD entry to be written by
// writeSyntheticTIFF; value holds either the inline 4-byte value or (for
// entries whose data does not fit inline) is left zero and patched with an
// external offset after the caller appends the referenced bytes.
type entrySpec struct {
	tag, typ uint16
	count    uint32
	value    [4]byte
}

func u32b(v uint32) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}

func u16b(v uint16) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b
}

// writeSyntheticTIFF builds a minimal valid tiled classic TIFF: a single
// directory, single channel, 4x4 uncompressed 8-bit grayscale image tiled
// 2x2 (four 2x2 tiles), each tile a distinct solid gray value.
func writeSyntheticTIFF(t *testing.T, tileValues [4]byte) string {
	t.Helper()

	const (
		width, height = 4, 4
		tileW, tileH  = 2, 2
	)

	tiles := make([][]byte, 4)
	for i, v := range tileValues {
		tiles[i] = bytes.Repeat([]byte{v}, tileW*tileH)
	}

	const ifdOffset = 8
	entries := []entrySpec{
		{256, 4, 1, u32b(width)},           // ImageWidth
		{257, 4, 1, u32b(height)},          // ImageLength
		{258, 3, 1, u16b(8)},               // BitsPerSample
		{259, 3, 1, u16b(1)},               // Compression = none
		{277, 3, 1, u16b(1)},               // SamplesPerPixel
		{322, 4, 1, u32b(tileW)},           // TileWidth
		{323, 4, 1, u32b(tileH)},           // TileLength
		{324, 4, 4, [4]byte{}},             // TileOffsets (external, patched below)
		{325, 4, 4, [4]byte{}},             // TileByteCounts (external, patched below)
	}

	ifdSize := 2 + len(entries)*12 + 4
	offsetsOff := ifdOffset + ifdSize
	byteCountsOff := offsetsOff + 4*4
	tileDataOff := byteCountsOff + 4*4

	offsets := make([]uint32, 4)
	byteCounts := make([]uint32, 4)
	cursor := uint32(tileDataOff)
	for i, tl := range tiles {
		offsets[i] = cursor
		byteCounts[i] = uint32(len(tl))
		cursor += uint32(len(tl))
	}
	entries[7].value = u32b(uint32(offsetsOff))
	entries[8].value = u32b(uint32(byteCountsOff))

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(ifdOffset))

	binary.Write(&buf, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.tag)
		binary.Write(&buf, binary.LittleEndian, e.typ)
		binary.Write(&buf, binary.LittleEndian, e.count)
		buf.Write(e.value[:])
	}
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // next IFD

	for _, o := range offsets {
		binary.Write(&buf, binary.LittleEndian, o)
	}
	for _, c := range byteCounts {
		binary.Write(&buf, binary.LittleEndian, c)
	}
	for _, tl := range tiles {
		buf.Write(tl)
	}

	path := filepath.Join(t.TempDir(), "slide.tif")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestOpenSingleLevelSingleChannel(t *testing.T) {
	path := writeSyntheticTIFF(t, [4]byte{10, 20, 30, 40})
	cache, err := tilecache.New(16)
	require.NoError(t, err)

	b, err := Open(path, 1, 1, cache)
	require.NoError(t, err)
	defer b.Close()

	require.Equal(t, 1, b.PlaneCount())
	levels := b.Levels()
	require.Len(t, levels, 1)
	require.Equal(t, 4.0, levels[0].Width)
	require.Equal(t, 4.0, levels[0].Height)
	require.Equal(t, 1.0, levels[0].Downsample)
}

func TestPaintRegionCompositesUncompressedTiles(t *testing.T) {
	path := writeSyntheticTIFF(t, [4]byte{10, 20, 30, 40})
	cache, err := tilecache.New(16)
	require.NoError(t, err)

	b, err := Open(path, 1, 1, cache)
	require.NoError(t, err)
	defer b.Close()

	dst := grid.NewPixels(4, 4)
	require.NoError(t, b.PaintRegion(dst, 0, 0, 0, 0, 0, 0, 4, 4))

	require.Equal(t, []byte{10, 10, 10, 255}, dst.At(0, 0), "tile (0,0)")
	require.Equal(t, []byte{20, 20, 20, 255}, dst.At(2, 0), "tile (1,0)")
	require.Equal(t, []byte{30, 30, 30, 255}, dst.At(0, 2), "tile (0,1)")
	require.Equal(t, []byte{40, 40, 40, 255}, dst.At(3, 3), "tile (1,1)")
}

func TestOpenRejectsUntiledFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tif")
	require.NoError(t, os.WriteFile(path, []byte("II*\x00\x00\x00\x00\x00"), 0o644))

	cache, err := tilecache.New(16)
	require.NoError(t, err)
	_, err = Open(path, 1, 1, cache)
	require.Error(t, err)
}

func TestOpenAutoCountsTiledDirectories(t *testing.T) {
	path := writeSyntheticTIFF(t, [4]byte{10, 20, 30, 40})
	cache, err := tilecache.New(16)
	require.NoError(t, err)

	b, err := OpenAuto(path, cache)
	require.NoError(t, err)
	defer b.Close()

	require.Equal(t, 1, b.PlaneCount())
	require.Len(t, b.Levels(), 1)
}

func TestOpenAutoRejectsUntiledFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tif")
	require.NoError(t, os.WriteFile(path, []byte("II*\x00\x00\x00\x00\x00"), 0o644))

	cache, err := tilecache.New(16)
	require.NoError(t, err)
	_, err = OpenAuto(path, cache)
	require.Error(t, err)
}

func TestOpenRejectsTooFewDirectories(t *testing.T) {
	path := writeSyntheticTIFF(t, [4]byte{10, 20, 30, 40})
	cache, err := tilecache.New(16)
	require.NoError(t, err)

	_, err = Open(path, 2, 1, cache)
	require.Error(t, err)
}

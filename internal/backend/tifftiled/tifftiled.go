// Package tifftiled implements the tiled-TIFF pyramid backend: one level
// per group of tiled directories, sorted by descending width. Grounded on
// olympus_open_tif/read_tif_tile/width_compare in
// original_source/src/openslide-vendor-olympus.c. Uncompressed and
// deflate-coded tiles are inflated and interpreted directly; new-style
// JPEG-in-TIFF tiles (which need JPEGTables reconstruction this backend
// does not implement) are decoded by delegating to libvips.
package tifftiled

import (
	"bytes"
	"io"
	"os"
	"sort"
	"unsafe"

	"github.com/cshum/vipsgen/vips"
	"github.com/klauspost/compress/zlib"

	"vsipyramid/internal/codec"
	"vsipyramid/internal/grid"
	"vsipyramid/internal/slide"
	"vsipyramid/internal/slideerr"
	"vsipyramid/internal/tilecache"
)

// Level is one tiled-TIFF pyramid level: one TIFF directory per channel,
// all validated to share the same width/height the way olympus_open_tif's
// per-channel g_assert does.
type Level struct {
	Width, Height          float64
	Downsample             float64
	TileW, TileH           int
	TilesAcross, TilesDown uint32
	Channels               []IFD // one directory per channel
	PageIndex              []int // absolute directory index per channel, for vips page selection
}

// Backend implements slide.Backend over a tiled-pyramid TIFF.
type Backend struct {
	path     string
	levels   []Level
	channels int
	cache    *tilecache.Cache
}

// tiffCompressionNone/JPEG/AdobeZ/Deflate are the TIFF Compression
// tag values this backend knows how to decode.
const (
	tiffCompressionNone    = 1
	tiffCompressionJPEG    = 7
	tiffCompressionAdobeZ  = 8
	tiffCompressionDeflate = 32946
)

var supportedCompression = map[uint16]bool{
	tiffCompressionNone:    true,
	tiffCompressionJPEG:    true,
	tiffCompressionAdobeZ:  true,
	tiffCompressionDeflate: true,
}

// Open groups the file's tiled directories into levelCount levels of
// channelCount directories each, in on-disk order, skipping any non-tiled
// directory (olympus_open_tif's TIFFIsTiled check), then sorts the levels
// by descending width (width_compare).
func Open(path string, levelCount, channelCount int, cache *tilecache.Cache) (*Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, slideerr.Wrap(slideerr.IoError, err, "opening TIFF %q", path)
	}
	defer f.Close()

	ifds, err := ParseIFDs(f)
	if err != nil {
		return nil, err
	}

	var tiledIdx []int
	for i, ifd := range ifds {
		if ifd.Tiled() {
			tiledIdx = append(tiledIdx, i)
		}
	}
	if len(tiledIdx) < levelCount*channelCount {
		return nil, slideerr.New(slideerr.DecodeError,
			"expected %d tiled directories for %d level(s) x %d channel(s), found %d",
			levelCount*channelCount, levelCount, channelCount, len(tiledIdx))
	}

	levels := make([]Level, 0, levelCount)
	for i := 0; i < levelCount; i++ {
		channels := make([]IFD, channelCount)
		pages := make([]int, channelCount)
		base := ifds[tiledIdx[i*channelCount]]
		for j := 0; j < channelCount; j++ {
			idx := tiledIdx[i*channelCount+j]
			ifd := ifds[idx]
			if !supportedCompression[ifd.Compression] {
				return nil, slideerr.New(slideerr.UnsupportedError,
					"tiled TIFF directory %d uses unavailable compression %d", idx, ifd.Compression)
			}
			if j > 0 && (ifd.Width != base.Width || ifd.Height != base.Height) {
				return nil, slideerr.New(slideerr.DecodeError,
					"level %d channel %d dimensions %dx%d do not match channel 0's %dx%d",
					i, j, ifd.Width, ifd.Height, base.Width, base.Height)
			}
			channels[j] = ifd
			pages[j] = idx
		}

		levels = append(levels, Level{
			Width:       float64(base.Width),
			Height:      float64(base.Height),
			TileW:       int(base.TileWidth),
			TileH:       int(base.TileHeight),
			TilesAcross: base.TilesAcross(),
			TilesDown:   base.TilesDown(),
			Channels:    channels,
			PageIndex:   pages,
		})
	}

	sort.SliceStable(levels, func(a, b int) bool { return levels[a].Width > levels[b].Width })
	widest := levels[0].Width
	for i := range levels {
		levels[i].Downsample = widest / levels[i].Width
	}

	return &Backend{path: path, levels: levels, channels: channelCount, cache: cache}, nil
}

// OpenAuto opens path with no externally-known level/channel grouping: it
// counts the file's tiled directories and treats each as its own
// single-channel level. This is the generic entry point for a plain tiled
// TIFF pyramid with no OME-XML sidecar to read a channel count from; a
// caller that does know the channel count (ometiff, reading it from the
// image description) should call Open directly instead.
func OpenAuto(path string, cache *tilecache.Cache) (*Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, slideerr.Wrap(slideerr.IoError, err, "opening TIFF %q", path)
	}
	ifds, err := ParseIFDs(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	tiledCount := 0
	for _, ifd := range ifds {
		if ifd.Tiled() {
			tiledCount++
		}
	}
	if tiledCount == 0 {
		return nil, slideerr.New(slideerr.NotRecognized, "%q has no tiled directories", path)
	}

	return Open(path, tiledCount, 1, cache)
}

// Levels implements slide.Backend.
func (b *Backend) Levels() []slide.Level {
	out := make([]slide.Level, len(b.levels))
	for i, l := range b.levels {
		out[i] = slide.Level{Width: l.Width, Height: l.Height, Downsample: l.Downsample}
	}
	return out
}

// PlaneCount implements slide.Backend.
func (b *Backend) PlaneCount() int { return b.channels }

// Properties implements slide.Backend. Device/instrument properties come
// from the OME-XML description; the tiled-pyramid layer contributes none
// directly.
func (b *Backend) Properties() map[string]string { return nil }

// AssociatedImages implements slide.Backend.
func (b *Backend) AssociatedImages() map[string]*grid.Pixels { return nil }

// Close implements slide.Backend. Tile reads open the backing file
// transiently per decode, so there is no persistent handle to release here.
func (b *Backend) Close() error { return nil }

func (b *Backend) handle() uintptr {
	return uintptr(unsafe.Pointer(b))
}

// PaintRegion implements slide.Backend.
func (b *Backend) PaintRegion(dst *grid.Pixels, dstX, dstY, level, channel, x, y, w, h int) error {
	if level < 0 || level >= len(b.levels) {
		return slideerr.New(slideerr.InvalidArgument, "level %d out of range [0,%d)", level, len(b.levels))
	}
	if channel < 0 || channel >= b.channels {
		return slideerr.New(slideerr.InvalidArgument, "channel %d out of range [0,%d)", channel, b.channels)
	}
	l := b.levels[level]

	g := grid.New(l.TileW, l.TileH, func(ctx grid.TileContext) ([]byte, int, int, error) {
		return b.readTile(level, ctx)
	})
	return g.PaintRegion(dst, dstX, dstY, uint32(level), uint32(channel), x, y, w, h)
}

// readTile resolves one grid cell's pixels through the shared tile cache,
// decoding on a miss. Tile requests past the directory's tile grid (the
// last row/column of an image whose dimensions aren't an exact tile
// multiple is still addressed by the grid compositor) paint as black.
func (b *Backend) readTile(level int, ctx grid.TileContext) ([]byte, int, int, error) {
	l := b.levels[level]
	if ctx.Col >= l.TilesAcross || ctx.Row >= l.TilesDown {
		return make([]byte, l.TileW*l.TileH*4), l.TileW, l.TileH, nil
	}

	key := tilecache.Key{Handle: b.handle(), Level: uint32(level), Col: ctx.Col, Row: ctx.Row, Channel: ctx.Channel}
	pix, release, err := b.cache.Fill(key, func() ([]byte, error) {
		return b.decodeTile(l, int(ctx.Channel), int(ctx.Col), int(ctx.Row))
	})
	if err != nil {
		return nil, 0, 0, err
	}
	defer release()

	out := make([]byte, len(pix))
	copy(out, pix)
	return out, l.TileW, l.TileH, nil
}

func (b *Backend) decodeTile(l Level, channel, col, row int) ([]byte, error) {
	ifd := l.Channels[channel]
	tileIdx := row*int(l.TilesAcross) + col
	if tileIdx >= len(ifd.TileOffsets) || tileIdx >= len(ifd.TileByteCounts) {
		return nil, slideerr.New(slideerr.DecodeError, "tile index %d out of range for directory", tileIdx)
	}
	offset := ifd.TileOffsets[tileIdx]
	length := ifd.TileByteCounts[tileIdx]

	switch ifd.Compression {
	case tiffCompressionJPEG:
		pix, decW, decH, err := b.decodeViaVips(l.PageIndex[channel], col*l.TileW, row*l.TileH, l.TileW, l.TileH)
		if err != nil {
			return nil, err
		}
		if decW != l.TileW || decH != l.TileH {
			return grid.FitToCell(pix, decW, decH, l.TileW, l.TileH), nil
		}
		return pix, nil
	case tiffCompressionAdobeZ, tiffCompressionDeflate:
		raw, err := inflateTile(b.path, offset, length)
		if err != nil {
			return nil, err
		}
		return decodeRawTile(raw, ifd, l)
	case tiffCompressionNone:
		raw, err := readTileBytes(b.path, offset, length)
		if err != nil {
			return nil, err
		}
		return decodeRawTile(raw, ifd, l)
	default:
		return nil, slideerr.New(slideerr.UnsupportedError, "unavailable tile compression %d", ifd.Compression)
	}
}

func decodeRawTile(raw []byte, ifd IFD, l Level) ([]byte, error) {
	pix, _, _, err := codec.Decode(codec.RAW, raw, codec.RawParams{
		Width:    l.TileW,
		Height:   l.TileH,
		Channels: int(ifd.SamplesPerPixel),
		Is32Bit:  ifd.BitsPerSample == 32,
	})
	return pix, err
}

func readTileBytes(path string, offset uint64, length uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, slideerr.Wrap(slideerr.IoError, err, "opening %q for tile read", path)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return nil, slideerr.Wrap(slideerr.IoError, err, "reading tile bytes at offset %d", offset)
	}
	return buf, nil
}

func inflateTile(path string, offset uint64, length uint64) ([]byte, error) {
	compressed, err := readTileBytes(path, offset, length)
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, slideerr.Wrap(slideerr.DecodeError, err, "opening deflate stream")
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, slideerr.Wrap(slideerr.DecodeError, err, "inflating tile")
	}
	return raw, nil
}

// decodeViaVips loads one TIFF directory through libvips and extracts a
// pixel region from it, for tile compressions this package does not
// reconstruct by hand (new-style JPEG needs its directory's JPEGTables
// merged into each tile's byte stream before decode).
func (b *Backend) decodeViaVips(pageIndex, x, y, w, h int) ([]byte, int, int, error) {
	opts := vips.DefaultTiffloadOptions()
	opts.Page = pageIndex
	opts.Access = vips.AccessRandom
	img, err := vips.NewTiffload(b.path, opts)
	if err != nil {
		return nil, 0, 0, slideerr.Wrap(slideerr.DecodeError, err, "opening TIFF directory %d", pageIndex)
	}
	defer img.Close()

	w = min(w, img.Width()-x)
	h = min(h, img.Height()-y)
	if err := img.ExtractArea(x, y, w, h); err != nil {
		return nil, 0, 0, slideerr.Wrap(slideerr.DecodeError, err, "extracting tile area")
	}

	saveOpts := vips.DefaultPngsaveBufferOptions()
	buf, err := img.PngsaveBuffer(saveOpts)
	if err != nil {
		return nil, 0, 0, slideerr.Wrap(slideerr.DecodeError, err, "exporting tile")
	}

	return codec.Decode(codec.PNG, buf, codec.RawParams{})
}

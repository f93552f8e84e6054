// Package ets implements the ETS payload backend: tile reader resolves via
// the tile index, decodes via internal/codec, and composites into the
// grid cell per spec.md §4.F. Grounded on read_ets_tile/read_ets_image/
// paint_ets_region/destroy_ets in
// original_source/src/openslide-vendor-olympus.c, including the
// "decoded tile bigger than its grid cell" secondary-surface special case.
package ets

import (
	"math"
	"unsafe"

	"github.com/cshum/vipsgen/vips"
	"golang.org/x/exp/mmap"

	"vsipyramid/internal/binformat"
	"vsipyramid/internal/codec"
	"vsipyramid/internal/grid"
	"vsipyramid/internal/slide"
	"vsipyramid/internal/slideerr"
	"vsipyramid/internal/tilecache"
	"vsipyramid/internal/tileindex"
)

// Level is one ETS pyramid level: TileW/TileH are the nominal
// grid cell (decode buffer) dimensions, constant across levels since the
// ETS header declares a single dimx/dimy; Width/Height are the level's
// full image dimensions, halving each level per the source's "each level
// is exactly half the previous" assumption (no per-level downsample is
// otherwise recorded in the ETS header).
type Level struct {
	Width, Height          float64
	Downsample             float64
	TileW, TileH           int
	TilesAcross, TilesDown uint32
}

// Backend implements slide.Backend over an opened .ets container.
type Backend struct {
	r      *mmap.ReaderAt
	sis    binformat.SISHeader
	ets    binformat.ETSHeader
	index  *tileindex.Index
	cache  *tilecache.Cache
	levels []Level
	planes int
	macro  *grid.Pixels
}

// Open reads the SIS/ETS headers and tile directory at path, builds the
// tile index and level list, and returns a ready Backend. cache is shared
// across backends opened by the same process.
func Open(path string, cache *tilecache.Cache) (*Backend, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, slideerr.Wrap(slideerr.IoError, err, "opening ETS container %q", path)
	}

	sis, err := binformat.ReadSISHeader(r)
	if err != nil {
		r.Close()
		return nil, err
	}

	ets, err := binformat.ReadETSHeader(r, int64(sis.ETSOffset))
	if err != nil {
		r.Close()
		return nil, err
	}

	records, err := binformat.ReadTileDirectory(r, int64(sis.OffsetTiles), sis.NTiles)
	if err != nil {
		r.Close()
		return nil, err
	}

	index, err := tileindex.Build(records)
	if err != nil {
		r.Close()
		return nil, err
	}

	maxChannel := uint32(0)
	for _, rec := range records {
		if rec.Channel > maxChannel {
			maxChannel = rec.Channel
		}
	}

	b := &Backend{
		r:      r,
		sis:    sis,
		ets:    ets,
		index:  index,
		cache:  cache,
		levels: buildLevels(index, ets),
		planes: int(maxChannel) + 1,
	}
	return b, nil
}

func buildLevels(index *tileindex.Index, ets binformat.ETSHeader) []Level {
	tileW, tileH := float64(ets.DimX), float64(ets.DimY)
	levelNums := index.Levels()
	levels := make([]Level, len(levelNums))

	var imgW, imgH float64
	for i, lvl := range levelNums {
		cols, rows, _ := index.TileExtent(lvl)
		if i == 0 {
			imgW = tileW * float64(cols)
			imgH = tileH * float64(rows)
		} else {
			imgW = math.Ceil(imgW / 2)
			imgH = math.Ceil(imgH / 2)
		}

		levels[i] = Level{
			Width:       imgW,
			Height:      imgH,
			Downsample:  math.Pow(2, float64(i)),
			TileW:       int(tileW),
			TileH:       int(tileH),
			TilesAcross: uint32(math.Ceil(imgW / tileW)),
			TilesDown:   uint32(math.Ceil(imgH / tileH)),
		}
	}
	return levels
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
func (b *Backend) PlaneCount() int { return b.planes }

// Properties implements slide.Backend. The ETS container itself carries no
// string properties beyond what olympus_open_vsi layers on from the .vsi
// side; this backend contributes none directly.
func (b *Backend) Properties() map[string]string { return nil }

// AssociatedImages implements slide.Backend. ETS containers carry no
// auxiliary images themselves; "macro" comes from the owning .vsi and is
// only present if AttachMacro was called and succeeded.
func (b *Backend) AssociatedImages() map[string]*grid.Pixels {
	if b.macro == nil {
		return nil
	}
	return map[string]*grid.Pixels{"macro": b.macro}
}

// AttachMacro loads TIFF directory 1 of vsiPath — the .vsi container's own
// macro overview image, stored alongside its ETS-pointing metadata — via
// libvips, and makes it available as this backend's "macro" associated
// image. Grounded on _openslide_tiff_add_associated_image in
// openslide-vendor-olympus.c, which reads the same directory off the .vsi
// file when olympus_open_vsi succeeds. Best-effort: callers opening a bare
// .ets file (no owning .vsi) simply never call this, and a decode failure
// here does not fail the slide open — it only means no macro image.
func (b *Backend) AttachMacro(vsiPath string) error {
	opts := vips.DefaultTiffloadOptions()
	opts.Page = 1
	opts.Access = vips.AccessRandom
	img, err := vips.NewTiffload(vsiPath, opts)
	if err != nil {
		return slideerr.Wrap(slideerr.DecodeError, err, "loading macro directory from %q", vsiPath)
	}
	defer img.Close()

	saveOpts := vips.DefaultPngsaveBufferOptions()
	buf, err := img.PngsaveBuffer(saveOpts)
	if err != nil {
		return slideerr.Wrap(slideerr.DecodeError, err, "exporting macro image from %q", vsiPath)
	}

	pix, w, h, err := codec.Decode(codec.PNG, buf, codec.RawParams{})
	if err != nil {
		return err
	}
	b.macro = &grid.Pixels{W: w, H: h, Pix: pix}
	return nil
}

// Close implements slide.Backend.
func (b *Backend) Close() error {
	return b.r.Close()
}

// handle is a stable per-backend identifier for tile-cache keys, since one
// process may have multiple ETS backends open concurrently.
func (b *Backend) handle() uintptr {
	return uintptr(unsafe.Pointer(b))
}

// PaintRegion implements slide.Backend.
func (b *Backend) PaintRegion(dst *grid.Pixels, dstX, dstY int, level, channel, x, y, w, h int) error {
	if level < 0 || level >= len(b.levels) {
		return slideerr.New(slideerr.InvalidArgument, "level %d out of range [0,%d)", level, len(b.levels))
	}
	l := b.levels[level]

	g := grid.New(l.TileW, l.TileH, func(ctx grid.TileContext) ([]byte, int, int, error) {
		return b.readTile(uint32(level), ctx)
	})
	return g.PaintRegion(dst, dstX, dstY, uint32(level), uint32(channel), x, y, w, h)
}

// readTile resolves one grid cell's pixels: cache hit, or decode-and-insert
// on miss. Tiles absent from the directory (a hole in the pyramid) paint as
// black per spec.md §4.F.
func (b *Backend) readTile(level uint32, ctx grid.TileContext) ([]byte, int, int, error) {
	l := b.levels[level]
	key := tilecache.Key{Handle: b.handle(), Level: level, Col: ctx.Col, Row: ctx.Row, Channel: ctx.Channel}

	entry, ok := b.index.Lookup(level, ctx.Col, ctx.Row, ctx.Channel)
	if !ok {
		return make([]byte, l.TileW*l.TileH*4), l.TileW, l.TileH, nil
	}

	pix, release, err := b.cache.Fill(key, func() ([]byte, error) {
		buf := make([]byte, entry.Length)
		if _, err := b.r.ReadAt(buf, int64(entry.Offset)); err != nil {
			return nil, slideerr.Wrap(slideerr.IoError, err, "reading tile bytes at offset %d", entry.Offset)
		}

		format, err := codecFormat(b.ets.Compression)
		if err != nil {
			return nil, err
		}
		pix, decW, decH, err := codec.Decode(format, buf, codec.RawParams{})
		if err != nil {
			return nil, err
		}

		// If the decoded image is larger than its nominal grid cell, the
		// source composites it into a grid-cell-sized secondary surface at
		// the tile record's declared (x,y) coordinate offset rather than
		// drawing it directly; callers here always receive a grid-cell-
		// sized buffer so the grid compositor need not special-case this.
		if decW != l.TileW || decH != l.TileH {
			return grid.FitToCell(pix, decW, decH, l.TileW, l.TileH), nil
		}
		return pix, nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	defer release()

	// The cache owns pix's backing array; hand the grid compositor a
	// private copy since it outlives this call's pin.
	out := make([]byte, len(pix))
	copy(out, pix)
	return out, l.TileW, l.TileH, nil
}

func codecFormat(c binformat.Compression) (codec.Format, error) {
	switch c {
	case binformat.CompressionJPEG:
		return codec.JPEG, nil
	case binformat.CompressionJP2K:
		return codec.JP2K, nil
	default:
		return 0, slideerr.New(slideerr.UnsupportedError, "unsupported ETS compression %d", c)
	}
}

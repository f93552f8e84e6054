// IFD-walk style grounded on pspoerri-geotiff2pmtiles/internal/cog/ifd.go,
// trimmed to the tags the tiled-TIFF and OME-TIFF backends actually need.
package tifftiled

import (
	"encoding/binary"
	"io"

	"vsipyramid/internal/slideerr"
)

const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagSamplesPerPixel  = 277
	tagImageDescription = 270
	tagTileWidth        = 322
	tagTileLength       = 323
	tagTileOffsets      = 324
	tagTileByteCounts   = 325
)

const (
	dtByte  = 1
	dtASCII = 2
	dtShort = 3
	dtLong  = 4
)

// IFD is one parsed TIFF image file directory: the subset of fields the
// olympus tiled-pyramid reader needs to locate and decode tiles.
type IFD struct {
	Width, Height    uint32
	TileWidth        uint32
	TileHeight       uint32
	BitsPerSample    uint16
	SamplesPerPixel  uint16
	Compression      uint16
	TileOffsets      []uint64
	TileByteCounts   []uint64
	ImageDescription string
}

// Tiled reports whether this directory carries tile tags at all — untiled
// (stripped) directories are skipped by the pyramid builder, mirroring the
// source's TIFFIsTiled check.
func (ifd *IFD) Tiled() bool {
	return ifd.TileWidth > 0 && ifd.TileHeight > 0
}

func (ifd *IFD) TilesAcross() uint32 {
	return (ifd.Width + ifd.TileWidth - 1) / ifd.TileWidth
}

func (ifd *IFD) TilesDown() uint32 {
	return (ifd.Height + ifd.TileHeight - 1) / ifd.TileHeight
}

type entry struct {
	tag      uint16
	dataType uint16
	count    uint32
	value    []byte
}

// ParseIFDs walks every IFD in a little- or big-endian classic TIFF,
// returning them in on-disk directory order.
func ParseIFDs(r io.ReadSeeker) ([]IFD, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, slideerr.Wrap(slideerr.DecodeError, err, "reading TIFF header")
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, slideerr.New(slideerr.NotRecognized, "not a TIFF file: bad byte order marker")
	}
	if bo.Uint16(header[2:4]) != 42 {
		return nil, slideerr.New(slideerr.NotRecognized, "not a TIFF file: bad magic")
	}

	var ifds []IFD
	offset := uint64(bo.Uint32(header[4:8]))
	for offset != 0 {
		ifd, next, err := parseOneIFD(r, bo, offset)
		if err != nil {
			return nil, err
		}
		ifds = append(ifds, ifd)
		offset = next
	}
	return ifds, nil
}

func parseOneIFD(r io.ReadSeeker, bo binary.ByteOrder, offset uint64) (IFD, uint64, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return IFD{}, 0, slideerr.Wrap(slideerr.IoError, err, "seeking to IFD at %d", offset)
	}

	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return IFD{}, 0, slideerr.Wrap(slideerr.DecodeError, err, "reading IFD entry count")
	}
	n := int(bo.Uint16(countBuf[:]))

	entries := make([]entry, n)
	for i := 0; i < n; i++ {
		var raw [12]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return IFD{}, 0, slideerr.Wrap(slideerr.DecodeError, err, "reading IFD entry %d", i)
		}
		entries[i] = entry{
			tag:      bo.Uint16(raw[0:2]),
			dataType: bo.Uint16(raw[2:4]),
			count:    bo.Uint32(raw[4:8]),
			value:    append([]byte(nil), raw[8:12]...),
		}
	}

	var nextBuf [4]byte
	if _, err := io.ReadFull(r, nextBuf[:]); err != nil {
		return IFD{}, 0, slideerr.Wrap(slideerr.DecodeError, err, "reading next IFD offset")
	}
	next := uint64(bo.Uint32(nextBuf[:]))

	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i]); err != nil {
			return IFD{}, 0, slideerr.Wrap(slideerr.DecodeError, err, "resolving tag %d", entries[i].tag)
		}
	}

	return buildIFD(entries, bo), next, nil
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII:
		return 1
	case dtShort:
		return 2
	case dtLong:
		return 4
	default:
		return 1
	}
}

func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *entry) error {
	total := int(e.count) * dataTypeSize(e.dataType)
	if total <= 4 {
		return nil
	}
	dataOffset := uint64(bo.Uint32(e.value))
	if _, err := r.Seek(int64(dataOffset), io.SeekStart); err != nil {
		return err
	}
	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.value = data
	return nil
}

func buildIFD(entries []entry, bo binary.ByteOrder) IFD {
	var ifd IFD
	ifd.SamplesPerPixel = 1
	for _, e := range entries {
		switch e.tag {
		case tagImageWidth:
			ifd.Width = asUint32(e, bo)
		case tagImageLength:
			ifd.Height = asUint32(e, bo)
		case tagTileWidth:
			ifd.TileWidth = asUint32(e, bo)
		case tagTileLength:
			ifd.TileHeight = asUint32(e, bo)
		case tagBitsPerSample:
			ifd.BitsPerSample = uint16(asUint32(e, bo))
		case tagSamplesPerPixel:
			ifd.SamplesPerPixel = uint16(asUint32(e, bo))
		case tagCompression:
			ifd.Compression = uint16(asUint32(e, bo))
		case tagTileOffsets:
			ifd.TileOffsets = asUint64Slice(e, bo)
		case tagTileByteCounts:
			ifd.TileByteCounts = asUint64Slice(e, bo)
		case tagImageDescription:
			n := int(e.count)
			if n > 0 && e.value[n-1] == 0 {
				n--
			}
			ifd.ImageDescription = string(e.value[:n])
		}
	}
	return ifd
}

func asUint32(e entry, bo binary.ByteOrder) uint32 {
	switch e.dataType {
	case dtShort:
		return uint32(bo.Uint16(e.value))
	case dtLong:
		return bo.Uint32(e.value)
	default:
		return uint32(e.value[0])
	}
}

func asUint64Slice(e entry, bo binary.ByteOrder) []uint64 {
	n := int(e.count)
	out := make([]uint64, n)
	switch e.dataType {
	case dtShort:
		for i := 0; i < n; i++ {
			out[i] = uint64(bo.Uint16(e.value[i*2 : i*2+2]))
		}
	case dtLong:
		for i := 0; i < n; i++ {
			out[i] = uint64(bo.Uint32(e.value[i*4 : i*4+4]))
		}
	}
	return out
}

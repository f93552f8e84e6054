package binformat

import (
	"encoding/binary"
	"io"

	"vsipyramid/internal/slideerr"
)

// PixelType is the ETS descriptor's sample encoding.
type PixelType uint32

const (
	PixelUint8 PixelType = 2
	PixelInt32 PixelType = 4
)

// Compression identifies the codec tiles in this container were written with.
type Compression uint32

const (
	CompressionJPEG Compression = 2
	CompressionJP2K Compression = 3
)

// Colorspace is the ETS descriptor's acquisition modality.
type Colorspace uint32

const (
	ColorspaceFluorescence Colorspace = 1
	ColorspaceBrightfield Colorspace = 4
)

// ETSHeader is the descriptor immediately following the SIS preamble.
// Its on-disk size is declared by SISHeader.ETSNBytes (always 228) but the
// number of bytes actually consumed depends on PixelType and SizeC, since
// the background-color array and its trailing padding share ten slots sized
// by PixelType's width. Callers must seek to SISHeader.OffsetTiles rather
// than assume the descriptor's end lines up with the tile directory.
type ETSHeader struct {
	Version     uint32
	PixelType   PixelType
	SizeC       uint32
	Colorspace  Colorspace
	Compression Compression
	Quality     uint32
	DimX        uint32
	DimY        uint32
	DimZ        uint32
	// BackgroundColor holds one value per channel, widened to uint32
	// regardless of PixelType for caller convenience.
	BackgroundColor []uint32
	UsePyramid      bool
}

// ReadETSHeader reads and validates the ETS descriptor at the given absolute
// offset (SISHeader.ETSOffset, always 64).
func ReadETSHeader(r io.ReaderAt, offset int64) (ETSHeader, error) {
	buf := make([]byte, etsHeaderSize)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return ETSHeader{}, slideerr.Wrap(slideerr.IoError, err, "reading ETS header")
	}

	if string(buf[0:4]) != etsMagic {
		return ETSHeader{}, slideerr.New(slideerr.DecodeError, "bad ETS magic %q", buf[0:4])
	}

	h := ETSHeader{
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		PixelType:   PixelType(binary.LittleEndian.Uint32(buf[8:12])),
		SizeC:       binary.LittleEndian.Uint32(buf[12:16]),
		Colorspace:  Colorspace(binary.LittleEndian.Uint32(buf[16:20])),
		Compression: Compression(binary.LittleEndian.Uint32(buf[20:24])),
		Quality:     binary.LittleEndian.Uint32(buf[24:28]),
		DimX:        binary.LittleEndian.Uint32(buf[28:32]),
		DimY:        binary.LittleEndian.Uint32(buf[32:36]),
		DimZ:        binary.LittleEndian.Uint32(buf[36:40]),
	}

	if h.PixelType != PixelUint8 && h.PixelType != PixelInt32 {
		return ETSHeader{}, slideerr.New(slideerr.DecodeError, "unexpected pixel type %d", h.PixelType)
	}
	if h.SizeC != 1 && h.SizeC != 3 {
		return ETSHeader{}, slideerr.New(slideerr.DecodeError, "unexpected channel count %d", h.SizeC)
	}
	if h.Colorspace != ColorspaceFluorescence && h.Colorspace != ColorspaceBrightfield {
		return ETSHeader{}, slideerr.New(slideerr.DecodeError, "unexpected colorspace %d", h.Colorspace)
	}
	if h.Compression != CompressionJPEG && h.Compression != CompressionJP2K {
		return ETSHeader{}, slideerr.New(slideerr.DecodeError, "unexpected compression %d", h.Compression)
	}
	if h.DimZ != 1 {
		return ETSHeader{}, slideerr.New(slideerr.UnsupportedError, "z-stacks (dimz=%d) are not supported", h.DimZ)
	}

	// Reserved skip region (17 uint32 words) separating the fixed prefix
	// from the background-color array; see openslide-vendor-olympus.c's
	// ets_header_read.
	const skipWords = 17
	pos := 40 + skipWords*4

	elemWidth := 1
	if h.PixelType == PixelInt32 {
		elemWidth = 4
	}
	h.BackgroundColor = make([]uint32, h.SizeC)
	for i := range h.BackgroundColor {
		off := pos + i*elemWidth
		if elemWidth == 1 {
			h.BackgroundColor[i] = uint32(buf[off])
		} else {
			h.BackgroundColor[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		}
	}
	// Ten total background-color slots are reserved regardless of SizeC,
	// but only the first SizeC scale with PixelType's element width; the
	// remaining (10-SizeC) padding slots are always read as a plain
	// uint32_t by ets_header_read's skip_bytes2, independent of pixel type.
	pos += int(h.SizeC)*elemWidth + (10-int(h.SizeC))*4

	// skip_bytes3: one uint32 (component ordering, unused here).
	pos += 4

	h.UsePyramid = binary.LittleEndian.Uint32(buf[pos:pos+4]) != 0

	return h, nil
}

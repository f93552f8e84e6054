// Package binformat decodes the fixed-layout SIS preamble, the ETS
// descriptor that follows it, and the ETS tile directory. All integers are
// little-endian; see spec.md §4.A and §6.
package binformat

import (
	"encoding/binary"
	"io"

	"vsipyramid/internal/slideerr"
)

const (
	sisHeaderSize = 64
	etsHeaderSize = 228

	sisMagic = "SIS\x00"
	etsMagic = "ETS\x00"
)

// SISHeader is the 64-byte preamble at the start of every .ets container.
type SISHeader struct {
	HeaderSize  uint32
	Version     uint32
	Ndim        uint32
	ETSOffset   uint64
	ETSNBytes   uint32
	OffsetTiles uint64
	NTiles      uint32
}

// ReadSISHeader reads and validates the 64-byte SIS preamble at offset 0.
func ReadSISHeader(r io.ReaderAt) (SISHeader, error) {
	buf := make([]byte, sisHeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return SISHeader{}, slideerr.Wrap(slideerr.IoError, err, "reading SIS header")
	}

	if string(buf[0:4]) != sisMagic {
		return SISHeader{}, slideerr.New(slideerr.DecodeError, "bad SIS magic %q", buf[0:4])
	}

	h := SISHeader{
		HeaderSize:  binary.LittleEndian.Uint32(buf[4:8]),
		Version:     binary.LittleEndian.Uint32(buf[8:12]),
		Ndim:        binary.LittleEndian.Uint32(buf[12:16]),
		ETSOffset:   binary.LittleEndian.Uint64(buf[16:24]),
		ETSNBytes:   binary.LittleEndian.Uint32(buf[24:28]),
		OffsetTiles: binary.LittleEndian.Uint64(buf[32:40]),
		NTiles:      binary.LittleEndian.Uint32(buf[40:44]),
	}
	// bytes 28:32 (dummy0), 44:64 (dummy1..dummy5) are reserved and unused.

	if h.HeaderSize != sisHeaderSize {
		return SISHeader{}, slideerr.New(slideerr.DecodeError, "unexpected SIS header size %d", h.HeaderSize)
	}
	if h.Ndim != 4 && h.Ndim != 6 {
		return SISHeader{}, slideerr.New(slideerr.DecodeError, "unexpected Ndim %d", h.Ndim)
	}
	if h.ETSOffset != sisHeaderSize {
		return SISHeader{}, slideerr.New(slideerr.DecodeError, "unexpected ETS offset %d", h.ETSOffset)
	}
	if h.ETSNBytes != etsHeaderSize {
		return SISHeader{}, slideerr.New(slideerr.DecodeError, "unexpected ETS descriptor size %d", h.ETSNBytes)
	}

	return h, nil
}

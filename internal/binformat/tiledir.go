package binformat

import (
	"encoding/binary"
	"io"

	"vsipyramid/internal/slideerr"
)

const tileRecordSize = 36

// TileRecord is one 36-byte entry in the ETS tile directory.
type TileRecord struct {
	X, Y, Channel uint32
	Level         uint32
	Offset        uint64
	Length        uint32
}

// ReadTileDirectory reads count consecutive 36-byte tile records starting at
// the given absolute offset (SISHeader.OffsetTiles).
func ReadTileDirectory(r io.ReaderAt, offset int64, count uint32) ([]TileRecord, error) {
	buf := make([]byte, int(count)*tileRecordSize)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, slideerr.Wrap(slideerr.IoError, err, "reading tile directory (%d entries)", count)
	}

	records := make([]TileRecord, count)
	for i := range records {
		b := buf[i*tileRecordSize : (i+1)*tileRecordSize]
		records[i] = TileRecord{
			// b[0:4] is a reserved dummy word.
			X:       binary.LittleEndian.Uint32(b[4:8]),
			Y:       binary.LittleEndian.Uint32(b[8:12]),
			Channel: binary.LittleEndian.Uint32(b[12:16]),
			Level:   binary.LittleEndian.Uint32(b[16:20]),
			Offset:  binary.LittleEndian.Uint64(b[20:28]),
			Length:  binary.LittleEndian.Uint32(b[28:32]),
			// b[32:36] is a reserved dummy word.
		}
	}
	return records, nil
}

// Package tileindex builds a hashed lookup from (level, x, y, channel) tile
// coordinates to the tile's byte range in the container, replacing the
// linear-scan `findtile` from the original vendor backend (spec.md §4.B, §9).
package tileindex

import (
	"sort"

	"vsipyramid/internal/binformat"
	"vsipyramid/internal/slideerr"
)

// Key identifies one tile within a multi-level, multi-channel pyramid.
type Key struct {
	Level   uint32
	X, Y    uint32
	Channel uint32
}

// Entry is the byte range of one compressed tile within the container.
type Entry struct {
	Offset uint64
	Length uint32
}

// Index is a hashed, read-only view over a tile directory.
type Index struct {
	entries map[Key]Entry
	extents map[uint32][2]uint32 // level -> (cols, rows), i.e. tilexmax+1, tileymax+1
	levels  []uint32             // ascending
}

// Build constructs an Index from the tile directory records read by
// internal/binformat. It rejects an empty directory since a slide with no
// tiles has nothing to serve.
func Build(records []binformat.TileRecord) (*Index, error) {
	if len(records) == 0 {
		return nil, slideerr.New(slideerr.DecodeError, "tile directory is empty")
	}

	entries := make(map[Key]Entry, len(records))
	maxXY := make(map[uint32][2]uint32)

	for _, r := range records {
		k := Key{Level: r.Level, X: r.X, Y: r.Y, Channel: r.Channel}
		entries[k] = Entry{Offset: r.Offset, Length: r.Length}

		cur := maxXY[r.Level]
		if r.X+1 > cur[0] {
			cur[0] = r.X + 1
		}
		if r.Y+1 > cur[1] {
			cur[1] = r.Y + 1
		}
		maxXY[r.Level] = cur
	}

	levels := make([]uint32, 0, len(maxXY))
	for lvl := range maxXY {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	return &Index{entries: entries, extents: maxXY, levels: levels}, nil
}

// Lookup returns the byte range for the given tile, or ok=false if no such
// tile exists in the directory (a hole or an out-of-range request).
func (ix *Index) Lookup(level, x, y, channel uint32) (Entry, bool) {
	e, ok := ix.entries[Key{Level: level, X: x, Y: y, Channel: channel}]
	return e, ok
}

// Levels returns the set of levels present in the directory, ascending.
func (ix *Index) Levels() []uint32 {
	return append([]uint32(nil), ix.levels...)
}

// LevelCount returns the number of distinct levels present.
func (ix *Index) LevelCount() int {
	return len(ix.levels)
}

// TileExtent returns the tile grid dimensions (columns, rows) of a level,
// derived from the maximum tile coordinates seen in the directory.
func (ix *Index) TileExtent(level uint32) (cols, rows uint32, ok bool) {
	v, ok := ix.extents[level]
	if !ok {
		return 0, 0, false
	}
	return v[0], v[1], true
}

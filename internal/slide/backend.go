package slide

import "vsipyramid/internal/grid"

// Backend is the capability trait every payload implementation (ETS, tiled
// TIFF, OME-TIFF) provides. It replaces the source's void* backend-data
// pointer plus a parallel operation-table struct (spec.md §9) with a single
// Go interface.
type Backend interface {
	// PaintRegion paints the rectangle [x, x+w) x [y, y+h) of the given
	// level and channel onto dst, starting at (dstX, dstY).
	PaintRegion(dst *grid.Pixels, dstX, dstY int, level, channel, x, y, w, h int) error
	// Levels returns the backend's pyramid levels, highest resolution first.
	Levels() []Level
	// PlaneCount returns the number of channels/planes the backend exposes.
	PlaneCount() int
	// Properties returns the backend-specific property table to merge into
	// the slide's frozen property map.
	Properties() map[string]string
	// AssociatedImages returns any auxiliary (non-pyramidal) images, such
	// as a VSI "macro" overview, keyed by name.
	AssociatedImages() map[string]*grid.Pixels
	// Close releases all backend-private state (file handles, mappings).
	Close() error
}

// Package slide implements the top-level Slide handle (spec.md §3): a list
// of pyramid levels, a plane count, a payload Backend, a frozen property
// table, and a first-writer-wins error cell. Grounded on the openslide_t/
// osr struct usage throughout original_source/src/openslide-vendor-olympus.c,
// redesigned per spec.md §9 to hold a Backend interface instead of a void*
// data pointer plus a parallel ops-table struct.
package slide

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"vsipyramid/internal/grid"
	"vsipyramid/internal/slideerr"
)

// Slide is the top-level handle returned by a successful open. It is safe
// for concurrent reads; Close is single-threaded — callers must guarantee
// no other goroutine is using the handle when Close runs.
type Slide struct {
	backend    Backend
	levels     []Level
	planeCount int
	properties map[string]string

	errCell errCell

	closeOnce sync.Once
}

// New wraps an opened Backend as a Slide. Levels, plane count, and
// properties are read from the backend once and frozen; detect/open code
// calls this after successfully constructing a backend.
func New(backend Backend, extraProperties map[string]string) *Slide {
	props := make(map[string]string, len(extraProperties)+len(backend.Properties()))
	for k, v := range backend.Properties() {
		props[k] = v
	}
	for k, v := range extraProperties {
		props[k] = v
	}

	return &Slide{
		backend:    backend,
		levels:     backend.Levels(),
		planeCount: backend.PlaneCount(),
		properties: props,
	}
}

// LevelCount returns the number of pyramid levels.
func (s *Slide) LevelCount() int { return len(s.levels) }

// PlaneCount returns the number of channels/planes.
func (s *Slide) PlaneCount() int { return s.planeCount }

// LevelDimensions returns the pixel dimensions of the given level.
func (s *Slide) LevelDimensions(level int) (w, h float64, err error) {
	if level < 0 || level >= len(s.levels) {
		return 0, 0, slideerr.New(slideerr.InvalidArgument, "level %d out of range [0,%d)", level, len(s.levels))
	}
	l := s.levels[level]
	return l.Width, l.Height, nil
}

// LevelDownsample returns the downsample ratio of the given level relative
// to level 0.
func (s *Slide) LevelDownsample(level int) (float64, error) {
	if level < 0 || level >= len(s.levels) {
		return 0, slideerr.New(slideerr.InvalidArgument, "level %d out of range [0,%d)", level, len(s.levels))
	}
	return s.levels[level].Downsample, nil
}

// BestLevelForDownsample returns the index of the best (highest-resolution)
// level whose own downsample does not exceed ds.
func (s *Slide) BestLevelForDownsample(ds float64) int {
	return bestLevelForDownsample(s.levels, ds)
}

// PropertyNames returns every property key. The property table is written
// only during open; this is a read of a frozen map and needs no locking.
func (s *Slide) PropertyNames() []string {
	names := make([]string, 0, len(s.properties))
	for k := range s.properties {
		names = append(names, k)
	}
	return names
}

// PropertyValue returns the named property, if present.
func (s *Slide) PropertyValue(name string) (string, bool) {
	v, ok := s.properties[name]
	return v, ok
}

// AssociatedImage returns a named auxiliary image (e.g. "macro"), if any.
func (s *Slide) AssociatedImage(name string) (*grid.Pixels, bool) {
	img, ok := s.backend.AssociatedImages()[name]
	return img, ok
}

// Error returns the slide's recorded error, or nil if none has occurred.
func (s *Slide) Error() error {
	return s.errCell.get()
}

// ReadRegion paints the rectangle [x, x+w) x [y, y+h) of the given level and
// plane onto dst starting at (dstX, dstY). If the slide's error cell is
// already set, ReadRegion fails fast without touching the backend. A
// transient decode failure surfaces to the caller without poisoning the
// slide (spec.md §7) — only MarkErrored sets the error cell.
func (s *Slide) ReadRegion(dst *grid.Pixels, dstX, dstY int, level, plane, x, y, w, h int) error {
	if err := s.errCell.get(); err != nil {
		return fmt.Errorf("slide is errored: %w", err)
	}
	if level < 0 || level >= len(s.levels) {
		return slideerr.New(slideerr.InvalidArgument, "level %d out of range [0,%d)", level, len(s.levels))
	}
	if plane < 0 || plane >= s.planeCount {
		return slideerr.New(slideerr.InvalidArgument, "plane %d out of range [0,%d)", plane, s.planeCount)
	}
	return s.backend.PaintRegion(dst, dstX, dstY, level, plane, x, y, w, h)
}

// Close releases the backend's resources. It is idempotent; only the first
// call does work. Every failure encountered while releasing resources is
// aggregated with go.uber.org/multierr instead of dropping all but one.
func (s *Slide) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = multierr.Append(err, s.backend.Close())
	})
	return err
}

// MarkErrored records a fatal error on an already-constructed slide; every
// later ReadRegion fails fast with it. No open path in this module calls
// it: slideopen.Open returns no slide at all when opening fails.
func (s *Slide) MarkErrored(err error) {
	s.errCell.trySet(err)
}

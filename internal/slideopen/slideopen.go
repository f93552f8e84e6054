// Package slideopen wires together the pieces spec.md's flow paragraph
// (§1) describes in sequence: format detection (internal/detect) picks and
// locates the payload, the matching backend (internal/backend/*) builds its
// tile index and level list over a shared tile cache, and the result is
// wrapped as a slide.Slide. Every caller that needs to turn a bare path
// into an opened slide — the slide scanner, the HTTP API, the operator CLI
// — goes through here instead of repeating the backend switch.
package slideopen

import (
	"strings"

	"vsipyramid/internal/backend/ets"
	"vsipyramid/internal/backend/ometiff"
	"vsipyramid/internal/backend/tifftiled"
	"vsipyramid/internal/detect"
	"vsipyramid/internal/slide"
	"vsipyramid/internal/slideerr"
	"vsipyramid/internal/tilecache"
)

// Open detects path's format, locates its payload (resolving a .vsi
// container to its sibling ETS/TIFF file), and opens the matching backend.
// It returns the backend's resolved payload path and detected format
// alongside the opened slide, since callers (the scanner, the CLI) often
// want to report what was actually read.
func Open(path string, cache *tilecache.Cache) (*slide.Slide, string, detect.Format, error) {
	format, resolved, err := detect.Detect(path)
	if err != nil {
		return nil, "", detect.FormatUnknown, err
	}

	switch format {
	case detect.FormatETS:
		backend, err := ets.Open(resolved, cache)
		if err != nil {
			return nil, resolved, format, err
		}
		// A .vsi-rooted open carries its own macro overview in TIFF
		// directory 1 of the .vsi file itself; a bare .ets has no owning
		// .vsi to read one from. Best-effort: a decode failure here does
		// not fail the slide open.
		if strings.HasSuffix(strings.ToLower(path), ".vsi") {
			_ = backend.AttachMacro(path)
		}
		return slide.New(backend, nil), resolved, format, nil
	case detect.FormatTIFFTiled:
		backend, err := tifftiled.OpenAuto(resolved, cache)
		if err != nil {
			return nil, resolved, format, err
		}
		return slide.New(backend, nil), resolved, format, nil
	case detect.FormatOMETIFF:
		backend, err := ometiff.Open(resolved, cache)
		if err != nil {
			return nil, resolved, format, err
		}
		return slide.New(backend, nil), resolved, format, nil
	default:
		return nil, resolved, format, slideerr.New(slideerr.NotRecognized, "unhandled format %v for %q", format, path)
	}
}

// Package ometiff implements the OME-TIFF backend: an embedded OME-XML
// ImageDescription supplies per-level geometry, micron-per-pixel, and
// channel/device identity; the tiled pyramid itself is the same directory
// layout internal/backend/tifftiled already knows how to read, since
// olympus_open_tif parses both from the one file. Grounded on
// parse_xml_description/olympus_open_tif/set_prop in
// original_source/src/openslide-vendor-olympus.c.
package ometiff

import (
	"fmt"
	"os"
	"strconv"

	"vsipyramid/internal/backend/tifftiled"
	"vsipyramid/internal/grid"
	"vsipyramid/internal/slide"
	"vsipyramid/internal/slideerr"
	"vsipyramid/internal/tilecache"
)

// Backend implements slide.Backend over an OME-TIFF container by
// delegating tile geometry and pixel reads to a wrapped tifftiled.Backend,
// and contributing the properties set_prop derives from the XML
// description (device identity, per-level micron-per-pixel).
type Backend struct {
	tiles *tifftiled.Backend
	props map[string]string
}

// Open reads the first non-empty ImageDescription among the file's
// directories, parses its
// OME-XML, and opens the tiled pyramid beneath it.
func Open(path string, cache *tilecache.Cache) (*Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, slideerr.Wrap(slideerr.IoError, err, "opening OME-TIFF %q", path)
	}
	ifds, err := tifftiled.ParseIFDs(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	var xmlText string
	for _, ifd := range ifds {
		if ifd.ImageDescription != "" {
			xmlText = ifd.ImageDescription
			break
		}
	}
	if xmlText == "" {
		return nil, slideerr.New(slideerr.NotRecognized, "no ImageDescription tag found in %q", path)
	}

	desc, err := parseImageDescription(xmlText)
	if err != nil {
		return nil, err
	}

	levelCount := len(desc.Levels)
	channelCount := len(desc.Levels[0].Channels)
	if channelCount == 0 {
		channelCount = 1
	}

	tiles, err := tifftiled.Open(path, levelCount, channelCount, cache)
	if err != nil {
		return nil, err
	}

	props := map[string]string{}
	if desc.DeviceManufacturer != "" {
		props["olympus.device-model"] = desc.DeviceManufacturer
	}
	if desc.DeviceModel != "" {
		props["olympus.device-version"] = desc.DeviceModel
	}
	// The widest (base) level's micron-per-pixel is what openslide.mpp-x/y
	// conventionally reports; tifftiled sorts levels widest-first.
	base := desc.Levels[0]
	for _, lvl := range desc.Levels {
		if lvl.Width > base.Width {
			base = lvl
		}
	}
	if base.MPPX > 0 {
		props["openslide.mpp-x"] = strconv.FormatFloat(base.MPPX, 'f', -1, 64)
	}
	if base.MPPY > 0 {
		props["openslide.mpp-y"] = strconv.FormatFloat(base.MPPY, 'f', -1, 64)
	}
	for i, ch := range base.Channels {
		if ch.Name != "" {
			props[fmt.Sprintf("olympus.channel[%d].name", i)] = ch.Name
		}
		if ch.EmissionWavelength != 0 {
			props[fmt.Sprintf("olympus.channel[%d].emission-wavelength", i)] = strconv.Itoa(ch.EmissionWavelength)
		}
	}

	return &Backend{tiles: tiles, props: props}, nil
}

// Levels implements slide.Backend.
func (b *Backend) Levels() []slide.Level { return b.tiles.Levels() }

// PlaneCount implements slide.Backend.
func (b *Backend) PlaneCount() int { return b.tiles.PlaneCount() }

// Properties implements slide.Backend.
func (b *Backend) Properties() map[string]string { return b.props }

// AssociatedImages implements slide.Backend. OME-TIFF containers carry no
// auxiliary images of their own.
func (b *Backend) AssociatedImages() map[string]*grid.Pixels { return nil }

// PaintRegion implements slide.Backend.
func (b *Backend) PaintRegion(dst *grid.Pixels, dstX, dstY, level, channel, x, y, w, h int) error {
	return b.tiles.PaintRegion(dst, dstX, dstY, level, channel, x, y, w, h)
}

// Close implements slide.Backend.
func (b *Backend) Close() error { return b.tiles.Close() }

package ometiff

import (
	"encoding/xml"
	"strconv"

	"vsipyramid/internal/slideerr"
)

// omeDoc mirrors just the subset of the OME-XML schema
// parse_xml_description reads out of a directory's ImageDescription tag:
// the microscope identity, and per-Image Pixels geometry/channels.
type omeDoc struct {
	XMLName    xml.Name `xml:"OME"`
	Instrument struct {
		Microscope struct {
			Manufacturer string `xml:"Manufacturer,attr"`
			Model        string `xml:"Model,attr"`
		} `xml:"Microscope"`
	} `xml:"Instrument"`
	Images []omeImage `xml:"Image"`
}

type omeImage struct {
	AcquisitionDate string    `xml:"AcquisitionDate"`
	Pixels          omePixels `xml:"Pixels"`
}

type omePixels struct {
	SizeX         int          `xml:"SizeX,attr"`
	SizeY         int          `xml:"SizeY,attr"`
	PhysicalSizeX string       `xml:"PhysicalSizeX,attr"`
	PhysicalSizeY string       `xml:"PhysicalSizeY,attr"`
	Channels      []omeChannel `xml:"Channel"`
}

type omeChannel struct {
	Name               string `xml:"Name,attr"`
	EmissionWavelength string `xml:"EmissionWavelength,attr"`
	Color              string `xml:"Color,attr"`
}

// channel is one fluorescence/brightfield channel's identity, carried
// through as slide properties rather than structured fields since nothing
// downstream consumes them beyond display.
type channel struct {
	Name               string
	EmissionWavelength int
	Color              int64
}

// level is one OME Image element's Pixels geometry.
type level struct {
	Width, Height int
	MPPX, MPPY    float64
	Channels      []channel
}

// description is the parsed result of an OME-XML ImageDescription: device
// identity plus one level per OME Image element, each carrying its own
// channel list (img_desc->img[i].ch in parse_xml_description).
type description struct {
	DeviceManufacturer string
	DeviceModel        string
	Levels             []level
}

func parseImageDescription(xmlText string) (*description, error) {
	var doc omeDoc
	if err := xml.Unmarshal([]byte(xmlText), &doc); err != nil {
		return nil, slideerr.Wrap(slideerr.DecodeError, err, "parsing OME-XML image description")
	}
	if len(doc.Images) == 0 {
		return nil, slideerr.New(slideerr.DecodeError, "OME-XML description has no Image elements")
	}

	desc := &description{
		DeviceManufacturer: doc.Instrument.Microscope.Manufacturer,
		DeviceModel:        doc.Instrument.Microscope.Model,
	}
	for _, img := range doc.Images {
		mppX, _ := strconv.ParseFloat(img.Pixels.PhysicalSizeX, 64)
		mppY, _ := strconv.ParseFloat(img.Pixels.PhysicalSizeY, 64)

		lvl := level{
			Width:  img.Pixels.SizeX,
			Height: img.Pixels.SizeY,
			MPPX:   mppX,
			MPPY:   mppY,
		}
		for _, c := range img.Pixels.Channels {
			wl, _ := strconv.Atoi(c.EmissionWavelength)
			color, _ := strconv.ParseInt(c.Color, 10, 64)
			lvl.Channels = append(lvl.Channels, channel{
				Name:               c.Name,
				EmissionWavelength: wl,
				Color:              color,
			})
		}
		desc.Levels = append(desc.Levels, lvl)
	}
	return desc, nil
}

package httpapi

import (
	"bytes"
	"encoding/xml"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"vsipyramid/internal/argb"
	"vsipyramid/internal/slideerr"
)

// dziImage is the Deep Zoom Image descriptor OpenSeadragon and every other
// DZI-speaking viewer expects at /api/slides/{id}/dzi.
type dziImage struct {
	XMLName  xml.Name `xml:"Image"`
	Xmlns    string   `xml:"xmlns,attr"`
	Format   string   `xml:"Format,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Size     dziSize  `xml:"Size"`
}

type dziSize struct {
	Width  int64 `xml:"Width,attr"`
	Height int64 `xml:"Height,attr"`
}

func (h *Handlers) handleDZI(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dz, err := h.dzFor(id)
	if err != nil {
		writeSlideError(w, err)
		return
	}

	l0w, l0h := dz.GetL0Dimensions()
	desc := dziImage{
		Xmlns:    "http://schemas.microsoft.com/deepzoom/2008",
		Format:   "jpeg",
		Overlap:  h.config.DZOverlap,
		TileSize: h.config.DZTileSize,
		Size:     dziSize{Width: l0w, Height: l0h},
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(desc)
}

// encodeTile converts a premultiplied BGRA32 tile buffer into an encoded
// jpg/png image. argb.ToRGBA does the unpremultiply-and-reorder in place;
// image/jpeg and image/png then read it as a straight-alpha image.RGBA,
// the same straight-alpha handoff internal/codec performs on decode.
func encodeTile(pix []byte, w, h int, ext string) ([]byte, error) {
	argb.ToRGBA(pix)
	img := &image.RGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}

	var buf bytes.Buffer
	switch ext {
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, slideerr.Wrap(slideerr.IoError, err, "encoding jpeg tile")
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, slideerr.Wrap(slideerr.IoError, err, "encoding png tile")
		}
	default:
		return nil, slideerr.New(slideerr.InvalidArgument, "unsupported tile format %q", ext)
	}
	return buf.Bytes(), nil
}

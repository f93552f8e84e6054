package cmd

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vsipyramid/internal/argb"
	"vsipyramid/internal/deepzoom"
	"vsipyramid/internal/slideopen"
	"vsipyramid/internal/tilecache"
)

func newTileCmd() *cobra.Command {
	var level, col, row, plane, tileSize, overlap int
	var limitBounds bool
	var out string

	cmd := &cobra.Command{
		Use:   "tile <path>",
		Short: "render one DeepZoom tile to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTile(args[0], level, col, row, plane, tileSize, overlap, limitBounds, out)
		},
	}

	pf := cmd.Flags()
	pf.IntVar(&level, "level", 0, "DeepZoom level")
	pf.IntVar(&col, "col", 0, "tile column")
	pf.IntVar(&row, "row", 0, "tile row")
	pf.IntVar(&plane, "plane", 0, "plane/channel index")
	pf.IntVar(&tileSize, "tile-size", 254, "DeepZoom tile size")
	pf.IntVar(&overlap, "overlap", 1, "DeepZoom tile overlap")
	pf.BoolVar(&limitBounds, "limit-bounds", true, "crop the pyramid to the slide's declared bounds rectangle")
	pf.StringVar(&out, "out", "", "output file path (.jpg or .png; defaults to tile.jpg)")

	return cmd
}

func runTile(path string, level, col, row, plane, tileSize, overlap int, limitBounds bool, out string) error {
	if out == "" {
		out = "tile.jpg"
	}
	ext := strings.TrimPrefix(strings.ToLower(out[strings.LastIndexByte(out, '.')+1:]), ".")

	cache, err := tilecache.New(64)
	if err != nil {
		return fmt.Errorf("building tile cache: %w", err)
	}

	s, _, _, err := slideopen.Open(path, cache)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}

	dz, err := deepzoom.Open(s, tileSize, overlap, limitBounds)
	if err != nil {
		s.Close()
		return fmt.Errorf("building deepzoom pyramid: %w", err)
	}
	defer dz.Close()

	_, _, _, outW, outH, _, _, err := dz.GetTileInfo(level, col, row)
	if err != nil {
		return fmt.Errorf("tile (%d,%d,%d) info: %w", level, col, row, err)
	}

	dst := make([]byte, int(outW)*int(outH)*4)
	if err := dz.GetTile(dst, plane, level, col, row); err != nil {
		return fmt.Errorf("rendering tile (%d,%d,%d): %w", level, col, row, err)
	}

	buf, err := encodeTile(dst, int(outW), int(outH), ext)
	if err != nil {
		return fmt.Errorf("encoding tile: %w", err)
	}

	if err := os.WriteFile(out, buf, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", out, err)
	}

	fmt.Printf("wrote %s (%dx%d, %d bytes)\n", out, outW, outH, len(buf))
	return nil
}

// encodeTile converts a premultiplied BGRA32 tile buffer into an encoded
// jpg/png image, the same unpremultiply-and-reorder handoff
// internal/httpapi uses to serve tiles over HTTP.
func encodeTile(pix []byte, w, h int, ext string) ([]byte, error) {
	argb.ToRGBA(pix)
	img := &image.RGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}

	var buf bytes.Buffer
	switch ext {
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, err
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported output extension %q", ext)
	}
	return buf.Bytes(), nil
}

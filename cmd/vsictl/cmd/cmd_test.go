package cmd

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testSISHeaderSize = 64
	testETSHeaderSize = 228
	testTileRecSize   = 36
)

// writeSyntheticETS writes a minimal single-tile 2x2 ETS file (the ets
// package's Scenario 1 uses four tiles; this helper needs only one).
func writeSyntheticETS(t *testing.T, dir, name string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	var tileBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&tileBuf, img, &jpeg.Options{Quality: 100}))
	tile := tileBuf.Bytes()

	etsOffset := int64(testSISHeaderSize)
	tileDirOffset := etsOffset + testETSHeaderSize
	payloadOffset := tileDirOffset + testTileRecSize

	buf := make([]byte, int(payloadOffset)+len(tile))

	copy(buf[0:4], "SIS\x00")
	binary.LittleEndian.PutUint32(buf[4:8], testSISHeaderSize)
	binary.LittleEndian.PutUint32(buf[8:12], 1)
	binary.LittleEndian.PutUint32(buf[12:16], 4)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(etsOffset))
	binary.LittleEndian.PutUint32(buf[24:28], testETSHeaderSize)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(tileDirOffset))
	binary.LittleEndian.PutUint32(buf[40:44], 1)

	e := buf[etsOffset : etsOffset+testETSHeaderSize]
	copy(e[0:4], "ETS\x00")
	binary.LittleEndian.PutUint32(e[4:8], 1)
	binary.LittleEndian.PutUint32(e[8:12], 2)
	binary.LittleEndian.PutUint32(e[12:16], 1)
	binary.LittleEndian.PutUint32(e[16:20], 4)
	binary.LittleEndian.PutUint32(e[20:24], 2)
	binary.LittleEndian.PutUint32(e[24:28], 80)
	binary.LittleEndian.PutUint32(e[28:32], 2)
	binary.LittleEndian.PutUint32(e[32:36], 2)
	binary.LittleEndian.PutUint32(e[36:40], 1)

	rec := buf[tileDirOffset : tileDirOffset+testTileRecSize]
	binary.LittleEndian.PutUint32(rec[4:8], 0)
	binary.LittleEndian.PutUint32(rec[8:12], 0)
	binary.LittleEndian.PutUint32(rec[12:16], 0)
	binary.LittleEndian.PutUint32(rec[16:20], 0)
	binary.LittleEndian.PutUint64(rec[20:28], uint64(payloadOffset))
	binary.LittleEndian.PutUint32(rec[28:32], uint32(len(tile)))

	copy(buf[payloadOffset:], tile)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestRootBuildsThreeSubcommands(t *testing.T) {
	root := NewRoot()
	names := make([]string, 0, 3)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"info", "tile", "detect"}, names)
}

func TestRunDetectRecognizesETS(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticETS(t, dir, "a.ets")
	require.NoError(t, runDetect(path))
}

func TestRunDetectReportsUnrecognizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))
	require.NoError(t, runDetect(path))
}

func TestRunInfoPrintsSlideSummary(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticETS(t, dir, "a.ets")
	require.NoError(t, runInfo(path))
}

func TestRunTileWritesJPEGFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticETS(t, dir, "a.ets")
	out := filepath.Join(dir, "out.jpg")

	require.NoError(t, runTile(path, 1, 0, 0, 0, 254, 1, false, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestRunTileRejectsOutOfRangeLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticETS(t, dir, "a.ets")
	out := filepath.Join(dir, "out.jpg")

	require.Error(t, runTile(path, 99, 0, 0, 0, 254, 1, false, out))
}

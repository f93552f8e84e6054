package tileindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vsipyramid/internal/binformat"
)

func TestBuildAndLookupScenario1(t *testing.T) {
	// Scenario 1 from spec.md §8: single level, 2x2 tile grid.
	records := []binformat.TileRecord{
		{X: 0, Y: 0, Channel: 0, Level: 0, Offset: 1000, Length: 500},
		{X: 1, Y: 0, Channel: 0, Level: 0, Offset: 1500, Length: 500},
		{X: 0, Y: 1, Channel: 0, Level: 0, Offset: 2000, Length: 500},
		{X: 1, Y: 1, Channel: 0, Level: 0, Offset: 2500, Length: 500},
	}

	ix, err := Build(records)
	require.NoError(t, err)
	require.Equal(t, 1, ix.LevelCount())
	require.Equal(t, []uint32{0}, ix.Levels())

	cols, rows, ok := ix.TileExtent(0)
	require.True(t, ok)
	require.Equal(t, uint32(2), cols)
	require.Equal(t, uint32(2), rows)

	e, ok := ix.Lookup(0, 1, 1, 0)
	require.True(t, ok)
	require.Equal(t, Entry{Offset: 2500, Length: 500}, e)

	_, ok = ix.Lookup(0, 5, 5, 0)
	require.False(t, ok)
}

func TestBuildMultiLevel(t *testing.T) {
	records := []binformat.TileRecord{
		{X: 0, Y: 0, Channel: 0, Level: 0, Offset: 0, Length: 10},
		{X: 1, Y: 0, Channel: 0, Level: 0, Offset: 10, Length: 10},
		{X: 0, Y: 0, Channel: 0, Level: 1, Offset: 20, Length: 10},
	}

	ix, err := Build(records)
	require.NoError(t, err)
	require.Equal(t, 2, ix.LevelCount())
	require.Equal(t, []uint32{0, 1}, ix.Levels())

	cols, rows, ok := ix.TileExtent(0)
	require.True(t, ok)
	require.Equal(t, uint32(2), cols)
	require.Equal(t, uint32(1), rows)

	cols, rows, ok = ix.TileExtent(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), cols)
	require.Equal(t, uint32(1), rows)
}

func TestBuildEmptyDirectory(t *testing.T) {
	_, err := Build(nil)
	require.Error(t, err)
}

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"vsipyramid/internal/slideopen"
	"vsipyramid/internal/tilecache"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <path>",
		Short: "print level/plane/property info for a slide",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args[0])
		},
	}
	return cmd
}

func runInfo(path string) error {
	cache, err := tilecache.New(64)
	if err != nil {
		return fmt.Errorf("building tile cache: %w", err)
	}

	s, resolved, format, err := slideopen.Open(path, cache)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer s.Close()

	fmt.Printf("path:     %s\n", path)
	fmt.Printf("resolved: %s\n", resolved)
	fmt.Printf("format:   %s\n", format)
	fmt.Printf("levels:   %d\n", s.LevelCount())
	fmt.Printf("planes:   %d\n", s.PlaneCount())

	for level := 0; level < s.LevelCount(); level++ {
		w, h, err := s.LevelDimensions(level)
		if err != nil {
			return fmt.Errorf("level %d dimensions: %w", level, err)
		}
		ds, err := s.LevelDownsample(level)
		if err != nil {
			return fmt.Errorf("level %d downsample: %w", level, err)
		}
		fmt.Printf("  level %2d: %8.0fx%-8.0f downsample=%.4f\n", level, w, h, ds)
	}

	names := s.PropertyNames()
	sort.Strings(names)
	fmt.Println("properties:")
	for _, name := range names {
		if v, ok := s.PropertyValue(name); ok {
			fmt.Printf("  %s = %s\n", name, v)
		}
	}

	return nil
}

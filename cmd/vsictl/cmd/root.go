// Package cmd implements vsictl, an operator CLI for inspecting slide
// files and rendering individual DeepZoom tiles without starting the
// HTTP server. Cobra layout grounded on jpfielding-dicos.go's
// cmd/ctl/cmd/root.go (one sub-command per file, RunE returning the
// error cobra prints); the root command itself defines no flags.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRoot builds the vsictl command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "vsictl",
		Short: "inspect and tile Olympus VSI / tiled-TIFF / OME-TIFF slides",
	}

	root.AddCommand(
		newInfoCmd(),
		newTileCmd(),
		newDetectCmd(),
	)

	return root
}

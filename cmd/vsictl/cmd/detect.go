package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vsipyramid/internal/detect"
	"vsipyramid/internal/slideerr"
)

func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <path>",
		Short: "print the detected slide format, or \"not recognized\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(args[0])
		},
	}
	return cmd
}

func runDetect(path string) error {
	format, resolved, err := detect.Detect(path)
	if err != nil {
		if slideerr.Is(err, slideerr.NotRecognized) {
			fmt.Println("not recognized")
			return nil
		}
		return err
	}
	fmt.Printf("format:   %s\n", format)
	fmt.Printf("resolved: %s\n", resolved)
	return nil
}

package main

import (
	"fmt"
	"os"

	"vsipyramid/cmd/vsictl/cmd"
)

func main() {
	if err := cmd.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

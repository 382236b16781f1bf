// Package main provides the entry point for the frameseek CLI.
package main

import (
	"os"

	"github.com/aicvlab/frameseek/cmd/frameseek/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the mediacore application.
package main

import (
	"os"

	"github.com/embedops/mediacore/cmd/mediacore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the entry point for the semche CLI.
package main

import (
	"os"

	"github.com/paterapatera/semche/cmd/semche/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

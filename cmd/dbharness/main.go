// Package main provides the entry point for the dbharness CLI.
package main

import (
	"os"

	"github.com/phrazzld/dbharness/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the contractkit CLI.
package main

import (
	"os"

	"contractkit/cmd/contractkit/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

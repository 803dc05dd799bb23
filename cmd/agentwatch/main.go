// Package main is the entry point for the agentwatch CLI.
package main

import (
	"os"

	"github.com/watchfire-io/agentwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the beacon alerting service.
package main

import (
	"os"

	"github.com/good-yellow-bee/beacon/cmd/beacon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point of relayctl, the operator tool for the event relay.
package main

import (
	"os"

	"github.com/jwalitptl/eventrelay/cmd/relayctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

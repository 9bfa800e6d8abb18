package main

import (
	"os"

	"regsweep/cmd/regsweep/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/emberian/tulip/cmd/tulip/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/MVittiS/Sdl3ComputeSample/cmd/computesample/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/11bDev-FOB/fragout-sub000/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/ppiankov/tgmigrate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

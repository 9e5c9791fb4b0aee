package main

import (
	"os"

	"github.com/mark-chris/threatc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

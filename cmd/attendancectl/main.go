package main

import (
	"os"

	"github.com/spec-kit/attendance-hub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

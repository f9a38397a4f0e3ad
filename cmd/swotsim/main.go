package main

import (
	"os"

	"github.com/YaoYu9404/swot-simulator/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

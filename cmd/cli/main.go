package main

import (
	"os"

	"github.com/aryan0dhankhar/rulemaster/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

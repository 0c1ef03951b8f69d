package main

import (
	"fmt"
	"os"

	"clawdash/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "clawdash:", err)
		os.Exit(1)
	}
}

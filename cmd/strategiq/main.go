package main

import (
	"os"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

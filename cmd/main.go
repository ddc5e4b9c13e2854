package main

import (
	"os"

	"github.com/Laurent-studi/quizlive/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/dossier-systems/dossier-ingest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/sentinelworks/ise-enrich/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/wesleyorama2/perfgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

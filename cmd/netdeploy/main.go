package main

import (
	"os"

	"github.com/dl-alexandre/netdeploy/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

package main

import (
	"fmt"
	"os"

	"github.com/grendel/clipseal/internal/cli"
)

func main() {
	app := cli.NewApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[clipseal] %v\n", err)
		os.Exit(1)
	}
}

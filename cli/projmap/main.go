// Package main is the projmap command line.
package main

import (
	"os"

	"go.viam.com/projmap/cli"
	"go.viam.com/projmap/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.NewLogger("projmap").Fatal(err)
	}
}

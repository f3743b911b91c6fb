// Package main is the entry point for the lakectl binary.
package main

import (
	"os"

	cli "shoplake/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

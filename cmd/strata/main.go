// Command strata is an interactive shell over a Strata database.
//
// Usage:
//
//	strata [data-dir]
//
// If no directory is given, STRATA_DATA_DIR is used, falling back to
// ./strata-data. Enter "help" at the prompt for available commands.
package main

import (
	"fmt"
	"os"

	"strata/pkg/cli"
	"strata/pkg/database"
)

func main() {
	dir := os.Getenv(database.EnvDataDir)
	if dir == "" {
		dir = "./strata-data"
	}
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	repl, err := cli.NewREPL(dir, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer repl.Close()

	repl.Run()
}

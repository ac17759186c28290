// Command ruleforgectl is a thin HTTP client CLI for the RULEFORGE
// session API: create, list, inspect, and retire sessions, drive
// evaluate/query/consult, from a shell.
package main

import (
	"fmt"
	"os"

	"github.com/ruleforge/ruleforge/cmd/ruleforgectl/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ruleforgectl: %v\n", err)
		os.Exit(1)
	}
}

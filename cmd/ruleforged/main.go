// Command ruleforged is the entry point for the RULEFORGE session host:
// the HTTP API server that creates, schedules, and evicts
// forward-chaining and backward-chaining reasoning sessions.
package main

import (
	"fmt"
	"os"

	"github.com/ruleforge/ruleforge/cmd/ruleforged/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ruleforged: %v\n", err)
		os.Exit(1)
	}
}

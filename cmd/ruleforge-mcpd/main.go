// Command ruleforge-mcpd is the MCP stdio adapter for RULEFORGE: the
// same session operations as the HTTP surface, exposed as MCP tools
// over newline-delimited JSON on stdin/stdout, for editors and agents
// that speak MCP rather than REST.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ruleforge/ruleforge/pkg/config"
	"github.com/ruleforge/ruleforge/pkg/corectx"
	"github.com/ruleforge/ruleforge/pkg/logger"
)

func main() {
	logger.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.NewDefaultProvider().GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ruleforge-mcpd: %v\n", err)
		os.Exit(1)
	}

	cc := corectx.Build(cfg)
	defer cc.Shutdown()
	go cc.Run(ctx)

	srv := NewServer(cc)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ruleforge-mcpd: %v\n", err)
		os.Exit(1)
	}
}

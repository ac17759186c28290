package app

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/pkg/api"
	"github.com/ruleforge/ruleforge/pkg/config"
	"github.com/ruleforge/ruleforge/pkg/corectx"
	"github.com/ruleforge/ruleforge/pkg/logger"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RULEFORGE session host",
	Long:  `Starts the HTTP API server and the scheduler, eviction, and supervisor loops that back it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		if configPath == "" {
			configPath, _ = cmd.Flags().GetString("config")
		}

		cfg, err := config.NewDefaultProvider().Load(configPath)
		if err != nil {
			return err
		}

		cc := corectx.Build(cfg)
		defer cc.Shutdown()

		go cc.Run(ctx)

		logger.Infof("session host ready: max_concurrent_sessions=%d max_sessions_per_user=%d",
			cfg.MaxConcurrentSessions, cfg.MaxSessionsPerUser)

		return api.Serve(ctx, cfg.ListenAddress, cc)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config-file", "", "Path to a RULEFORGE config file (YAML/JSON/TOML)")
}

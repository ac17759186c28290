// Package app provides the entry point for the ruleforged command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ruleforge/ruleforge/pkg/logger"
)

// NewRootCmd creates the root command for the ruleforged server binary.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "ruleforged",
		DisableAutoGenTag: true,
		Short:             "ruleforged hosts long-lived forward- and backward-chaining reasoning sessions behind a REST API",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: built-in defaults + RULEFORGE_* env)")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	return rootCmd
}

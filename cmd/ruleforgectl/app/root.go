// Package app builds the ruleforgectl cobra command tree.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ruleforge/ruleforge/pkg/apiclient"
)

var serverAddr string

func client() *apiclient.Client {
	return apiclient.New(serverAddr)
}

// NewRootCmd creates the root command for ruleforgectl.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "ruleforgectl",
		DisableAutoGenTag: true,
		Short:             "ruleforgectl drives a ruleforged session host from the command line",
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8080",
		"Base URL of the ruleforged instance to talk to")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newDevilsCmd())
	return rootCmd
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
	"github.com/collaborator-ai/seedvault-sub000/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "seedvaultd",
	Short:   "seedvault sync daemon",
	Version: version.Detailed(),
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "seedvault config file")
	rootCmd.AddCommand(newDaemonCmd())
}

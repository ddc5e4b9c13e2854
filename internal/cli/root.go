// Package cli holds the quizlive command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Laurent-studi/quizlive/internal/config"
	"github.com/Laurent-studi/quizlive/internal/server"
)

var configPath string

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "quizlive",
		Short: "Live quiz session and competitive scoring engine",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func loadConfig() (server.Config, error) {
	var c server.Config
	if err := config.Load(configPath, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

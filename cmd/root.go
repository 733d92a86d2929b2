package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridocs/reviewctl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reviewctl",
	Short: "Hallucination-review workflow tracker for AI-assisted docs",
	Long:  "Tracks content items through intake, automated checks, editorial screening, SME verification, approval, and publish, enforcing the review metadata and approval gates.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

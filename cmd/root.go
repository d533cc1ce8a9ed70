package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "orgmap",
	Short: "CRM schema discovery and adaptive household queries",
	Long:  "Discovers how each Salesforce tenant models households, contacts, financial accounts and AUM, stores the mapping, and builds tenant-aware SOQL from it.",
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

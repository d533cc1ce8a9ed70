package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var discoverOut string

var discoverCmd = &cobra.Command{
	Use:   "discover <tenant>",
	Short: "Assemble and store a tenant's metadata bundle from Salesforce",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := env.Pipeline.Discover(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("discovery complete",
			zap.String("tenant", b.TenantID),
			zap.Int("objects", len(b.Objects)),
			zap.Int("describes", len(b.Describes)),
			zap.Int("api_calls", b.Discovery.Calls),
			zap.Int("soft_errors", len(b.Discovery.Errors)),
		)

		if discoverOut != "" {
			return writeBundle(discoverOut, b)
		}
		return printJSON(cmd.OutOrStdout(), b)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverOut, "out", "", "write the bundle to this file instead of stdout")
	rootCmd.AddCommand(discoverCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	tenantsHistory string
	tenantsLimit   int

	mappingDelete bool
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List tenants with a stored mapping, or one tenant's mapping history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if tenantsHistory != "" {
			hist, err := env.Pipeline.History(ctx, tenantsHistory, tenantsLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), hist)
		}

		tenants, err := env.Pipeline.Tenants(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tenants)
	},
}

var mappingCmd = &cobra.Command{
	Use:   "mapping <tenant>",
	Short: "Show or delete a tenant's stored mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if mappingDelete {
			if err := env.Pipeline.DeleteMapping(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted mapping for %s\n", args[0])
			return nil
		}

		m, err := env.Pipeline.Mapping(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), m)
	},
}

func init() {
	tenantsCmd.Flags().StringVar(&tenantsHistory, "history", "", "show mapping history for this tenant")
	tenantsCmd.Flags().IntVar(&tenantsLimit, "limit", 0, "max history entries (default 20)")
	mappingCmd.Flags().BoolVar(&mappingDelete, "delete", false, "delete the mapping so queries use the defaults")

	rootCmd.AddCommand(tenantsCmd, mappingCmd)
}

package main

import (
	"github.com/spf13/cobra"
)

var (
	queryTerm  string
	queryLimit int
	queryRun   bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Build tenant-aware SOQL from the stored mapping",
}

var queryHouseholdsCmd = &cobra.Command{
	Use:   "households <tenant>",
	Short: "List or search a tenant's household records",
	Long:  "Prints the SOQL built from the tenant's mapping, or the built-in defaults when it has none. With --run the query is executed against Salesforce.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, queryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := queryLimit
		if limit == 0 {
			limit = cfg.Query.DefaultLimit
		}
		q, err := env.Pipeline.Households(ctx, args[0], queryTerm, limit, queryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), q)
	},
}

func init() {
	queryHouseholdsCmd.Flags().StringVarP(&queryTerm, "q", "q", "", "household name search term")
	queryHouseholdsCmd.Flags().IntVar(&queryLimit, "limit", 0, "max records (default from config)")
	queryHouseholdsCmd.Flags().BoolVar(&queryRun, "run", false, "execute the query against Salesforce")

	queryCmd.AddCommand(queryHouseholdsCmd)
	rootCmd.AddCommand(queryCmd)
}

package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/internal/override"
)

var (
	classifyBundle string
	classifySave   bool

	choicesBundle string

	overrideAnswers   string
	overrideHousehold string
	overrideAdvisor   string
	overrideAUM       string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <tenant>",
	Short: "Classify a tenant's metadata bundle into an org mapping",
	Long:  "Reads the bundle from --bundle, the store, or live discovery, in that order. The mapping is only stored with --save.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := optionalBundle(classifyBundle)
		if err != nil {
			return err
		}
		res, err := env.Pipeline.Classify(ctx, args[0], b, classifySave)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var choicesCmd = &cobra.Command{
	Use:   "choices <tenant>",
	Short: "List the override choices for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := optionalBundle(choicesBundle)
		if err != nil {
			return err
		}
		cs, err := env.Pipeline.Choices(ctx, args[0], b)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cs)
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override <tenant>",
	Short: "Apply confirmed choices to a tenant's stored mapping",
	Long:  "Answers come from a YAML file (--answers) with household, advisor and aum keys, or from the matching flags. Flags win over the file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answers, err := collectAnswers()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Pipeline.Override(ctx, args[0], answers)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), m)
	},
}

func optionalBundle(path string) (*model.MetadataBundle, error) {
	if path == "" {
		return nil, nil
	}
	return readBundle(path)
}

func collectAnswers() (override.Answers, error) {
	var a override.Answers
	if overrideAnswers != "" {
		var err error
		if a, err = override.LoadAnswers(overrideAnswers); err != nil {
			return a, err
		}
	}
	if overrideHousehold != "" {
		a.Household = overrideHousehold
	}
	if overrideAdvisor != "" {
		a.Advisor = overrideAdvisor
	}
	if overrideAUM != "" {
		a.AUM = overrideAUM
	}
	if a.Empty() {
		return a, eris.New("override: no answers given (use --answers or --household/--advisor/--aum)")
	}
	return a, nil
}

func init() {
	classifyCmd.Flags().StringVar(&classifyBundle, "bundle", "", "classify a bundle file instead of the stored one")
	classifyCmd.Flags().BoolVar(&classifySave, "save", false, "store the bundle and mapping")
	choicesCmd.Flags().StringVar(&choicesBundle, "bundle", "", "build choices from a bundle file")

	overrideCmd.Flags().StringVar(&overrideAnswers, "answers", "", "YAML file with household, advisor and aum choice IDs")
	overrideCmd.Flags().StringVar(&overrideHousehold, "household", "", "household choice ID")
	overrideCmd.Flags().StringVar(&overrideAdvisor, "advisor", "", "advisor choice ID")
	overrideCmd.Flags().StringVar(&overrideAUM, "aum", "", "AUM choice ID")

	rootCmd.AddCommand(classifyCmd, choicesCmd, overrideCmd)
}

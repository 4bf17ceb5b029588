package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/productmatch/internal/compliance"
)

var termsCmd = &cobra.Command{
	Use:   "terms",
	Short: "Print the forbidden terms the compliance check uses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		terms := compliance.LoadTerms(cfg.ForbiddenTermsPath, logger)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Forbidden terms (%d) from %s:\n", terms.Len(), cfg.ForbiddenTermsPath)
		for _, term := range terms.List() {
			fmt.Fprintln(out, term)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(termsCmd)
}

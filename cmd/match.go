package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/productmatch/internal/catalog"
	"github.com/example/productmatch/internal/compliance"
	"github.com/example/productmatch/internal/config"
	"github.com/example/productmatch/internal/imageio"
	"github.com/example/productmatch/internal/repository"
)

var matchCatalogFile string

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Match a single photo against the catalog and print the report",
	Long: `Match compares the given photo with the catalog and prints the match
report followed by the compliance verdict. The catalog is read from the
database unless --catalog points at a YAML seed file.`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().StringVar(&matchCatalogFile, "catalog", "", "Read the catalog from a YAML seed file instead of the database")
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	userImage, err := imageio.Decode(data)
	if err != nil {
		return err
	}

	entries, err := loadCatalog(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	terms := compliance.LoadTerms(cfg.ForbiddenTermsPath, logger)
	result, err := newMatcher(cfg, logger).FindBestMatch(cmd.Context(), userImage, entries, compliance.Checker(terms))
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), result.Report(), result.Verdict)
}

func loadCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]catalog.Entry, error) {
	if matchCatalogFile != "" {
		return catalog.LoadSeed(matchCatalogFile)
	}
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeDatabase(db, logger)
	return repository.NewMatchRepository(db, logger).ListCatalog(ctx)
}

func printResult(w io.Writer, report, verdict string) error {
	if verdict == "" {
		verdict = "-"
	}
	_, err := fmt.Fprintf(w, "%s\n\nCompliance: %s\n", report, verdict)
	return err
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/productmatch/internal/catalog"
	"github.com/example/productmatch/internal/repository"
)

var seedCmd = &cobra.Command{
	Use:   "seed <catalog.yaml>",
	Short: "Load catalog products from a YAML file into the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	entries, err := catalog.LoadSeed(args[0])
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, logger)

	repo := repository.NewMatchRepository(db, logger)
	if err := repo.AutoMigrate(cmd.Context()); err != nil {
		return err
	}
	n, err := repo.UpsertProducts(cmd.Context(), entries)
	if err != nil {
		return err
	}

	logger.Info("catalog seeded", zap.String("file", args[0]), zap.Int("rows", n))
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d products from %s\n", len(entries), args[0])
	return nil
}

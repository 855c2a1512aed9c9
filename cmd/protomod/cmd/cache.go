package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/protomod/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the compile cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached compile result",
	Long: `Clear drops the on-disk compile cache named by cache.dir, or the user
cache directory when it is not set. The cache is cleared even if it is
disabled in the configuration.

Example:
  protomod cache clear --config protomod.yaml`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dc, err := cache.Open(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to open compile cache: %w", err)
	}
	if err := dc.DropAll(); err != nil {
		return fmt.Errorf("failed to clear compile cache: %w", err)
	}
	fmt.Fprintf(outputWriter, "Cleared compile cache at %s\n", dc.Dir())
	return nil
}

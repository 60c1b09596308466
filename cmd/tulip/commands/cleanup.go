package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/logger"
	"github.com/emberian/tulip/internal/puppets"
)

var cleanupForReal bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-stale-handlers",
	Short: "Remove recent-type puppet handlers outside their recency window",
	Long: `Removes recent-type puppet handlers whose last activity is older than
their puppet's recency window. Claimed handlers are never touched.
Runs as a dry run unless --for-real is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		pool, err := db.Open(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		svc := puppets.NewService(logger.L, pool)
		count, err := svc.CleanupStaleHandlers(ctx, !cleanupForReal)
		if err != nil {
			return err
		}
		if cleanupForReal {
			fmt.Printf("removed %d stale handlers\n", count)
		} else {
			fmt.Printf("would remove %d stale handlers (dry run, use --for-real to delete)\n", count)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForReal, "for-real", "f", false, "actually delete instead of dry run")
	rootCmd.AddCommand(cleanupCmd)
}

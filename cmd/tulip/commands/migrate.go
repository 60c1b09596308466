package commands

import (
	"io/fs"

	"github.com/spf13/cobra"

	dbembed "github.com/emberian/tulip/db"
	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version|force N]",
	Short: "Apply or roll back database migrations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		migrations, err := fs.Sub(dbembed.MigrationsFS, "migrations")
		if err != nil {
			return err
		}
		return db.RunMigrate(logger.L, cfg.Postgres, migrations, args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

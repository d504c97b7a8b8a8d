package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations to the postgres store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rt.Postgres == nil {
			return errors.New("migrate requires STORE_DRIVER=postgres")
		}
		if err := persistence.RunMigrations(cmd.Context(), rt.Postgres.PoolHandle(), migrationsDir, logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", persistence.DefaultMigrationsDir, "directory holding .sql migrations")
}

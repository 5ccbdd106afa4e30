package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/casemind/internal/infrastructure/database/postgres"
	"github.com/turtacn/casemind/pkg/errors"
)

// Migration entry points, variables so tests can substitute them.
var (
	migrateUp     = postgres.MigrateUp
	migrateDown   = postgres.RollbackMigration
	migrateStatus = postgres.MigrationStatus
)

// MigrationView is the schema version after a migrate command.
type MigrationView struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (v *MigrationView) TableHeaders() []string { return []string{"Version", "Dirty"} }

func (v *MigrationView) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(v.Version), 10), strconv.FormatBool(v.Dirty)}}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the case store schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, func(url, path string) error { return migrateUp(url, path) })
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return errors.InvalidParam("--steps must be greater than 0")
			}
			return runMigration(cmd, func(url, path string) error { return migrateDown(url, path, steps) })
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, nil)
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

// runMigration applies op, when set, and then prints the schema version.
func runMigration(cmd *cobra.Command, op func(url, path string) error) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	url := postgres.MigrationURL(postgres.ConfigFrom(cc.Config.Database))
	path := cc.Config.Database.MigrationPath

	if op != nil {
		if err := op(url, path); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "migration failed")
		}
	}
	version, dirty, err := migrateStatus(url, path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "migration status")
	}
	if err := PrintResult(cmd, &MigrationView{Version: version, Dirty: dirty}); err != nil {
		return err
	}
	if op != nil && cc.OutputFormat != OutputJSON {
		PrintSuccess(cmd, fmt.Sprintf("schema at version %d", version))
	}
	return nil
}

//Personal.AI order the ending

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/eventrelay/internal/repository/dialect"
	"github.com/jwalitptl/eventrelay/internal/repository/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations",
	Long:  `Apply pending schema migrations to each selected tenant database. Only PostgreSQL tenants are migrated; MySQL schemas are managed outside relayctl.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		tenants, err := s.tenants()
		if err != nil {
			return err
		}
		for _, t := range tenants {
			if t.Dialect != dialect.Postgres {
				cmd.Printf("%s: skipped (%s)\n", t.ID, t.Dialect)
				continue
			}
			if err := postgres.Migrate(t.DB.DB); err != nil {
				return fmt.Errorf("tenant %s: %w", t.ID, err)
			}
			cmd.Printf("%s: up to date\n", t.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/eventrelay/internal/service/eventconfig"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the external event configuration of every tenant",
	Long:  `Check that each tenant has exactly one configuration row per deliverable event type. Exits non-zero when any tenant fails; the worker would refuse to schedule it.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		valid, failures := eventconfig.ValidateAll(cmd.Context(), s.registry.ConfigServices(), s.log)
		for _, id := range valid {
			cmd.Printf("%s: ok\n", id)
		}
		failed := make([]string, 0, len(failures))
		for id := range failures {
			failed = append(failed, id)
		}
		sort.Strings(failed)
		for _, id := range failed {
			cmd.Printf("%s: %v\n", id, failures[id])
		}
		if len(failures) > 0 {
			return fmt.Errorf("%d tenant(s) failed validation", len(failures))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and change external event configuration",
}

var eventsGetCmd = &cobra.Command{
	Use:   "get [type]",
	Short: "Show whether event types are enabled",
	Long:  `Show the enabled flag of one event type, or of every configured type when none is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		tenants, err := s.tenants()
		if err != nil {
			return err
		}
		for _, t := range tenants {
			if len(args) == 1 {
				cfg, err := t.Configs.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("tenant %s: %w", t.ID, err)
				}
				cmd.Printf("%s\t%s\t%t\n", t.ID, cfg.Type, cfg.Enabled)
				continue
			}
			configs, err := t.Configs.List(ctx)
			if err != nil {
				return fmt.Errorf("tenant %s: %w", t.ID, err)
			}
			for _, cfg := range configs {
				cmd.Printf("%s\t%s\t%t\n", t.ID, cfg.Type, cfg.Enabled)
			}
		}
		return nil
	},
}

var eventsSetCmd = &cobra.Command{
	Use:   "set Type=true|false...",
	Short: "Enable or disable event types",
	Long:  `Apply all changes in one transaction per tenant. An unknown type aborts the whole update.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := parseChanges(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		tenants, err := s.tenants()
		if err != nil {
			return err
		}
		for _, t := range tenants {
			changed, err := t.Configs.SetMany(ctx, changes)
			if err != nil {
				return fmt.Errorf("tenant %s: %w", t.ID, err)
			}
			types := make([]string, 0, len(changed))
			for typ := range changed {
				types = append(types, typ)
			}
			sort.Strings(types)
			for _, typ := range types {
				cmd.Printf("%s\t%s\t%t\n", t.ID, typ, changed[typ])
			}
			if len(changed) == 0 {
				cmd.Printf("%s: no changes\n", t.ID)
			}
		}
		return nil
	},
}

var eventsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Add missing catalog event types as disabled",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		tenants, err := s.tenants()
		if err != nil {
			return err
		}
		for _, t := range tenants {
			added, err := t.Configs.Register(ctx)
			if err != nil {
				return fmt.Errorf("tenant %s: %w", t.ID, err)
			}
			cmd.Printf("%s: registered %d event type(s)\n", t.ID, added)
		}
		return nil
	},
}

// parseChanges reads Type=bool arguments.
func parseChanges(args []string) (map[string]bool, error) {
	changes := make(map[string]bool, len(args))
	for _, arg := range args {
		typ, raw, ok := strings.Cut(arg, "=")
		if !ok || typ == "" {
			return nil, fmt.Errorf("expected Type=true|false, got %q", arg)
		}
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid flag for %s: %w", typ, err)
		}
		changes[typ] = enabled
	}
	return changes, nil
}

func init() {
	eventsCmd.AddCommand(eventsGetCmd)
	eventsCmd.AddCommand(eventsSetCmd)
	eventsCmd.AddCommand(eventsRegisterCmd)
	rootCmd.AddCommand(eventsCmd)
}

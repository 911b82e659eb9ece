package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jwalitptl/eventrelay/config"
	"github.com/jwalitptl/eventrelay/internal/app"
	"github.com/jwalitptl/eventrelay/internal/tenant"
	"github.com/jwalitptl/eventrelay/pkg/event"
	"github.com/jwalitptl/eventrelay/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "relayctl operates the external event relay",
	Long: `relayctl runs one-off operations against the tenant databases of the external event relay.

Common workflows:

  Apply schema migrations to every tenant:
    relayctl migrate

  Check that every deliverable event type is configured:
    relayctl validate

  Enable event types for a tenant:
    relayctl events set --tenant default LoanApprovedBusinessEvent=true

  Drain the outbox once, outside the worker schedule:
    relayctl dispatch --tenant default

Configuration is read from the same config.yml as the worker (--config or CONFIG_FILE),
with EVENTRELAY_* environment overrides.`,
	SilenceUsage: true,
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./config, /app, /app/config)")

	rootCmd.PersistentFlags().StringP("tenant", "t", "", "tenant id (default: all configured tenants)")
	viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
}

type session struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *tenant.Registry
}

func (s *session) Close() error {
	return s.registry.Close()
}

// tenants returns the --tenant selection, or every tenant when none is given.
func (s *session) tenants() ([]*tenant.Tenant, error) {
	ids := s.registry.IDs()
	if id := viper.GetString("tenant"); id != "" {
		ids = []string{id}
	}
	out := make([]*tenant.Tenant, 0, len(ids))
	for _, id := range ids {
		t, err := s.registry.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	log := app.NewLogger(cfg)
	registry, err := tenant.Open(ctx, cfg, event.DefaultCatalog(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenants: %w", err)
	}
	return &session{cfg: cfg, log: log, registry: registry}, nil
}

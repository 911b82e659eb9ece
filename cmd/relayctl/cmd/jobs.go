package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/eventrelay/internal/app"
	"github.com/jwalitptl/eventrelay/internal/tenant"
	"github.com/jwalitptl/eventrelay/pkg/lock"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

// withLease runs fn while holding the same lease the worker takes for job.
func withLease(ctx context.Context, locker lock.Locker, t *tenant.Tenant, job string, fn func() error) error {
	lease, err := locker.TryLock(ctx, lock.Key(t.ID, job))
	if errors.Is(err, lock.ErrNotAcquired) {
		return fmt.Errorf("tenant %s: %s is running on a worker, try again later", t.ID, job)
	}
	if err != nil {
		return err
	}
	defer lease.Unlock(context.WithoutCancel(ctx))
	return fn()
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send one batch of pending external events",
	Long:  `Read one page of PENDING outbox rows per tenant, hand them to the configured transport and mark them SENT once acknowledged.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		transport, err := app.NewTransport(ctx, s.cfg, s.log)
		if err != nil {
			return err
		}
		defer transport.Close()
		locker, closeLocker, err := app.NewLocker(ctx, s.cfg, s.log)
		if err != nil {
			return err
		}
		defer closeLocker()

		jobs := app.NewJobs(s.cfg, transport, locker, s.log, metrics.New("relayctl", nil))
		tenants, err := s.tenants()
		if err != nil {
			return err
		}
		for _, t := range tenants {
			err := withLease(ctx, locker, t, worker.JobSendEvents, func() error {
				res, err := jobs.Dispatcher.Dispatch(ctx, t.Worker())
				if err != nil {
					return err
				}
				status := "sent"
				if res.SendFailed {
					status = "transport failed, rows left pending"
				}
				cmd.Printf("%s: read=%d sent=%d partitions=%d skipped=%d (%s)\n",
					t.ID, res.Read, res.Sent, res.Partitions, len(res.Skipped), status)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sent external events past the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		locker, closeLocker, err := app.NewLocker(ctx, s.cfg, s.log)
		if err != nil {
			return err
		}
		defer closeLocker()

		purger := worker.NewPurger(s.cfg.Purge.ToPurgerConfig(), s.log, metrics.New("relayctl", nil))
		tenants, err := s.tenants()
		if err != nil {
			return err
		}
		for _, t := range tenants {
			err := withLease(ctx, locker, t, worker.JobPurgeEvents, func() error {
				cutoff, n, err := purger.Purge(ctx, t.Worker())
				if err != nil {
					return fmt.Errorf("tenant %s: %w", t.ID, err)
				}
				cmd.Printf("%s: deleted %d sent event(s) created before %s\n", t.ID, n, cutoff.Format("2006-01-02"))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Fail job executions left running by a crashed worker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		locker, closeLocker, err := app.NewLocker(ctx, s.cfg, s.log)
		if err != nil {
			return err
		}
		defer closeLocker()

		recovery := worker.NewRecovery(locker, s.cfg.Recovery.ToRecoveryConfig(), s.log, metrics.New("relayctl", nil))
		tenants, err := s.tenants()
		if err != nil {
			return err
		}
		var errs []error
		for _, t := range tenants {
			ids, err := recovery.Recover(ctx, t.Worker())
			cmd.Printf("%s: failed executions %v\n", t.ID, ids)
			if err != nil {
				errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
			}
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(recoverCmd)
}

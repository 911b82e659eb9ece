// Package tenant opens and holds the per-tenant databases and the stores built on them.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/config"
	"github.com/jwalitptl/eventrelay/internal/repository/dialect"
	"github.com/jwalitptl/eventrelay/internal/repository/postgres"
	"github.com/jwalitptl/eventrelay/internal/service/eventconfig"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
	"github.com/jwalitptl/eventrelay/pkg/event"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

// Tenant is one tenant's database with everything built on top of it.
type Tenant struct {
	ID       string
	DB       *sqlx.DB
	Dialect  dialect.Name
	Repos    *postgres.Repositories
	Configs  *eventconfig.Service
	Settings worker.TenantSettings
}

func New(id string, db *sqlx.DB, name dialect.Name, catalog *event.Catalog, settings worker.TenantSettings) *Tenant {
	repos := postgres.NewRepositories(db, name)
	return &Tenant{
		ID:       id,
		DB:       db,
		Dialect:  name,
		Repos:    repos,
		Configs:  eventconfig.NewService(repos.EventConfigs, catalog),
		Settings: settings,
	}
}

// Worker is the tenant as the scheduled jobs see it.
func (t *Tenant) Worker() *worker.Tenant {
	return &worker.Tenant{
		ID:       t.ID,
		Outbox:   t.Repos.Outbox,
		Ledger:   t.Repos.Jobs,
		Params:   t.Repos.JobParameters,
		Dates:    t.Repos.BusinessDates,
		Settings: t.Settings,
	}
}

type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

func NewRegistry(tenants ...*Tenant) *Registry {
	r := &Registry{tenants: make(map[string]*Tenant)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

// Open connects every configured tenant, detecting each database's dialect.
// Already opened connections are closed if a later tenant fails.
func Open(ctx context.Context, cfg *config.Config, catalog *event.Catalog, log *logger.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, tc := range cfg.Tenants {
		db, err := postgres.NewDB(ctx, cfg.Database, cfg.TenantDSN(tc.ID), log)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("tenant %s: %w", tc.ID, err)
		}

		name, err := dialect.Detect(ctx, db)
		if err != nil {
			log.Warn("Database dialect not recognized, running job parameter lookups will fail",
				"tenant", tc.ID, "error", err.Error())
		}

		r.Add(New(tc.ID, db, name, catalog, cfg.TenantSettings(tc.ID)))
		log.Info("Tenant database connected", "tenant", tc.ID, "dialect", string(name))
	}
	return r, nil
}

func (r *Registry) Add(t *Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
}

func (r *Registry) Get(id string) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("tenant %s", id), nil)
	}
	return t, nil
}

// IDs returns the tenant ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConfigServices maps tenant id to its configuration service.
func (r *Registry) ConfigServices() map[string]*eventconfig.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*eventconfig.Service, len(r.tenants))
	for id, t := range r.tenants {
		out[id] = t.Configs
	}
	return out
}

// WorkerTenants returns the listed tenants, or all of them when ids is empty.
func (r *Registry) WorkerTenants(ids ...string) (worker.StaticTenants, error) {
	if len(ids) == 0 {
		ids = r.IDs()
	}
	out := make(worker.StaticTenants, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t.Worker())
	}
	return out, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, t := range r.tenants {
		if t.DB != nil {
			if err := t.DB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

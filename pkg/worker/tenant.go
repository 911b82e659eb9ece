package worker

import (
	"github.com/jwalitptl/eventrelay/pkg/repository"
)

// Job names as recorded in the job ledger.
const (
	JobSendEvents  = "SEND_ASYNCHRONOUS_EVENTS"
	JobPurgeEvents = "PURGE_EXTERNAL_EVENTS"
	JobRecoverRuns = "RECOVER_STUCK_JOBS"
)

// TenantSettings are the per-tenant overrides of the worker defaults. Zero
// values fall back to the worker's own config.
type TenantSettings struct {
	BatchSize           int
	PurgeDaysCriteria   int
	StuckRetryThreshold int
}

// Tenant bundles the stores one tenant's jobs run against.
type Tenant struct {
	ID       string
	Outbox   repository.Outbox
	Ledger   repository.JobLedger
	Params   repository.JobParameterStore
	Dates    repository.BusinessDateSource
	Settings TenantSettings
}

type TenantSource interface {
	Tenants() []*Tenant
}

// StaticTenants is a fixed tenant list.
type StaticTenants []*Tenant

func (s StaticTenants) Tenants() []*Tenant {
	return s
}

// Lookup returns the tenant with id, or nil.
func (s StaticTenants) Lookup(id string) *Tenant {
	for _, t := range s {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func pick(override, fallback int) int {
	if override > 0 {
		return override
	}
	return fallback
}

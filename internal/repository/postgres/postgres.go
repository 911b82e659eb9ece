package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/repository"
	"github.com/jwalitptl/eventrelay/internal/repository/dialect"
)

// Repositories are all stores of one tenant database.
type Repositories struct {
	Base          BaseRepository
	Outbox        repository.OutboxRepository
	EventConfigs  repository.EventConfigurationRepository
	Jobs          repository.JobExecutionRepository
	JobParameters repository.CustomJobParameterRepository
	BusinessDates repository.BusinessDateRepository
}

// NewRepositories wires every repository on db for the given dialect. The
// parameter lookup of an unsupported dialect fails on use, not here.
func NewRepositories(db *sqlx.DB, name dialect.Name) *Repositories {
	base := NewBaseRepositoryWithDialect(db, name)
	return &Repositories{
		Base:          base,
		Outbox:        NewOutboxRepository(base),
		EventConfigs:  NewEventConfigurationRepository(base),
		Jobs:          NewJobExecutionRepository(base),
		JobParameters: NewCustomJobParameterRepository(base, dialect.ForNameOrUnsupported(name)),
		BusinessDates: NewBusinessDateRepository(base),
	}
}

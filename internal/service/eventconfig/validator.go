package eventconfig

import (
	"context"
	"sort"

	"github.com/jwalitptl/eventrelay/pkg/logger"
)

// ValidateAll validates every tenant and returns the ids that passed, plus the
// failures keyed by tenant. A failing tenant is left out of scheduling.
func ValidateAll(ctx context.Context, services map[string]*Service, log *logger.Logger) ([]string, map[string]error) {
	ids := make([]string, 0, len(services))
	for id := range services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		valid    []string
		failures = make(map[string]error)
	)
	for _, id := range ids {
		if err := services[id].Validate(ctx); err != nil {
			log.Error(err, "External event configuration is incomplete, tenant disabled", "tenant", id)
			failures[id] = err
			continue
		}
		valid = append(valid, id)
	}
	return valid, failures
}

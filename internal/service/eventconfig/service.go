package eventconfig

import (
	"context"
	"fmt"
	"time"

	playground "github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/internal/repository"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
	"github.com/jwalitptl/eventrelay/pkg/event"
	"github.com/jwalitptl/eventrelay/pkg/validator"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheCleanup = 10 * time.Minute
)

// Service is one tenant's view of the external event configuration. Enabled
// flags are cached; SetMany drops the cache.
type Service struct {
	repo     repository.EventConfigurationRepository
	catalog  *event.Catalog
	cache    *cache.Cache
	validate *playground.Validate
}

type Option func(*Service)

// WithCacheTTL overrides how long enabled flags are cached. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

func NewService(repo repository.EventConfigurationRepository, catalog *event.Catalog, opts ...Option) *Service {
	if catalog == nil {
		catalog = event.DefaultCatalog()
	}
	s := &Service{
		repo:     repo,
		catalog:  catalog,
		cache:    cache.New(defaultCacheTTL, defaultCacheCleanup),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, eventType string) (*model.EventTypeConfiguration, error) {
	return s.repo.Get(ctx, eventType)
}

func (s *Service) List(ctx context.Context) ([]*model.EventTypeConfiguration, error) {
	return s.repo.List(ctx)
}

// IsEnabled reports whether eventType should be written to the outbox. An
// unconfigured type is a not-found error.
func (s *Service) IsEnabled(ctx context.Context, eventType string) (bool, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(eventType); ok {
			return v.(bool), nil
		}
	}

	cfg, err := s.repo.Get(ctx, eventType)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		s.cache.SetDefault(eventType, cfg.Enabled)
	}
	return cfg.Enabled, nil
}

// SetMany applies all changes in one transaction or none of them, and returns
// the entries whose value actually changed.
func (s *Service) SetMany(ctx context.Context, changes map[string]bool) (map[string]bool, error) {
	if err := s.validate.Var(changes, "required,min=1"); err != nil {
		return nil, apperrors.BadRequest("at least one external event configuration is required", err)
	}

	changed, err := s.repo.SetMany(ctx, changes)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Flush()
	}
	return changed, nil
}

// Register adds every catalog type that has no configuration row yet, disabled.
func (s *Service) Register(ctx context.Context) (int64, error) {
	added, err := s.repo.Register(ctx, s.catalog.ExternalTypes())
	if err != nil {
		return 0, fmt.Errorf("failed to register external event types: %w", err)
	}
	return added, nil
}

// Validate checks that the configured types are exactly the deliverable types
// of the catalog. The error names the first missing type in sorted order.
func (s *Service) Validate(ctx context.Context) error {
	expected := s.catalog.ExternalTypes()

	configured, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load external event configuration: %w", err)
	}

	known := make(map[string]struct{}, len(configured))
	for _, c := range configured {
		known[c.Type] = struct{}{}
	}
	for _, t := range expected {
		if _, ok := known[t]; !ok {
			return apperrors.Configuration(fmt.Sprintf("no external event configuration found for event type %s", t), nil)
		}
	}

	if len(known) != len(expected) {
		deliverable := make(map[string]struct{}, len(expected))
		for _, t := range expected {
			deliverable[t] = struct{}{}
		}
		for _, c := range configured {
			if _, ok := deliverable[c.Type]; !ok {
				return apperrors.Configuration(fmt.Sprintf("external event configuration found for unknown event type %s", c.Type), nil)
			}
		}
	}
	return nil
}

package eventconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/eventrelay/internal/model"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
	"github.com/jwalitptl/eventrelay/pkg/event"
	"github.com/jwalitptl/eventrelay/pkg/logger"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Get(ctx context.Context, eventType string) (*model.EventTypeConfiguration, error) {
	args := m.Called(ctx, eventType)
	cfg, _ := args.Get(0).(*model.EventTypeConfiguration)
	return cfg, args.Error(1)
}

func (m *mockRepo) List(ctx context.Context) ([]*model.EventTypeConfiguration, error) {
	args := m.Called(ctx)
	cfgs, _ := args.Get(0).([]*model.EventTypeConfiguration)
	return cfgs, args.Error(1)
}

func (m *mockRepo) SetMany(ctx context.Context, changes map[string]bool) (map[string]bool, error) {
	args := m.Called(ctx, changes)
	changed, _ := args.Get(0).(map[string]bool)
	return changed, args.Error(1)
}

func (m *mockRepo) Register(ctx context.Context, types []string) (int64, error) {
	args := m.Called(ctx, types)
	return args.Get(0).(int64), args.Error(1)
}

func testCatalog() *event.Catalog {
	return event.NewCatalog(
		event.Descriptor{Type: "LoanBusinessEvent", Abstract: true},
		event.Descriptor{Type: "LoanApprovedBusinessEvent", Category: "Loan"},
		event.Descriptor{Type: "ClientCreateBusinessEvent", Category: "Client"},
		event.Descriptor{Type: "LoanCOBBusinessStepEvent", NoExternalEvent: true},
		event.Descriptor{Type: event.BulkEventType},
	)
}

func configs(types ...string) []*model.EventTypeConfiguration {
	out := make([]*model.EventTypeConfiguration, 0, len(types))
	for _, t := range types {
		out = append(out, &model.EventTypeConfiguration{Type: t})
	}
	return out
}

func TestValidate_Complete(t *testing.T) {
	repo := new(mockRepo)
	repo.On("List", mock.Anything).Return(configs("ClientCreateBusinessEvent", "LoanApprovedBusinessEvent"), nil)

	assert.NoError(t, NewService(repo, testCatalog()).Validate(context.Background()))
}

func TestValidate_NamesFirstMissingType(t *testing.T) {
	repo := new(mockRepo)
	repo.On("List", mock.Anything).Return(configs("LoanApprovedBusinessEvent"), nil)

	err := NewService(repo, testCatalog()).Validate(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "ClientCreateBusinessEvent")
}

func TestValidate_SameSizeDifferentTypes(t *testing.T) {
	repo := new(mockRepo)
	repo.On("List", mock.Anything).Return(configs("ClientCreateBusinessEvent", "LoanRejectedBusinessEvent"), nil)

	err := NewService(repo, testCatalog()).Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LoanApprovedBusinessEvent")
}

func TestValidate_ExtraConfiguredType(t *testing.T) {
	repo := new(mockRepo)
	repo.On("List", mock.Anything).Return(configs("ClientCreateBusinessEvent", "LoanApprovedBusinessEvent", "RetiredBusinessEvent"), nil)

	err := NewService(repo, testCatalog()).Validate(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "RetiredBusinessEvent")
}

func TestIsEnabled_CachesLookups(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Get", mock.Anything, "LoanApprovedBusinessEvent").
		Return(&model.EventTypeConfiguration{Type: "LoanApprovedBusinessEvent", Enabled: true}, nil).Once()
	svc := NewService(repo, testCatalog())

	for i := 0; i < 3; i++ {
		enabled, err := svc.IsEnabled(context.Background(), "LoanApprovedBusinessEvent")
		require.NoError(t, err)
		assert.True(t, enabled)
	}
	repo.AssertNumberOfCalls(t, "Get", 1)
}

func TestIsEnabled_UnknownType(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Get", mock.Anything, "Nope").Return(nil, apperrors.NotFound("external event configuration Nope", nil))

	_, err := NewService(repo, testCatalog()).IsEnabled(context.Background(), "Nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSetMany_FlushesCache(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Get", mock.Anything, "LoanApprovedBusinessEvent").
		Return(&model.EventTypeConfiguration{Type: "LoanApprovedBusinessEvent", Enabled: false}, nil).Once()
	repo.On("Get", mock.Anything, "LoanApprovedBusinessEvent").
		Return(&model.EventTypeConfiguration{Type: "LoanApprovedBusinessEvent", Enabled: true}, nil).Once()
	repo.On("SetMany", mock.Anything, map[string]bool{"LoanApprovedBusinessEvent": true}).
		Return(map[string]bool{"LoanApprovedBusinessEvent": true}, nil)
	svc := NewService(repo, testCatalog())

	enabled, err := svc.IsEnabled(context.Background(), "LoanApprovedBusinessEvent")
	require.NoError(t, err)
	assert.False(t, enabled)

	changed, err := svc.SetMany(context.Background(), map[string]bool{"LoanApprovedBusinessEvent": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"LoanApprovedBusinessEvent": true}, changed)

	enabled, err = svc.IsEnabled(context.Background(), "LoanApprovedBusinessEvent")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestSetMany_RejectsEmpty(t *testing.T) {
	repo := new(mockRepo)
	_, err := NewService(repo, testCatalog()).SetMany(context.Background(), map[string]bool{})
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))
	repo.AssertNotCalled(t, "SetMany", mock.Anything, mock.Anything)
}

func TestSetMany_PropagatesNotFound(t *testing.T) {
	repo := new(mockRepo)
	repo.On("SetMany", mock.Anything, mock.Anything).Return(nil, apperrors.NotFound("external event configuration Bogus", nil))

	_, err := NewService(repo, testCatalog()).SetMany(context.Background(), map[string]bool{"Bogus": true})
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "Bogus")
}

func TestRegister_UsesExternalTypes(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Register", mock.Anything, []string{"ClientCreateBusinessEvent", "LoanApprovedBusinessEvent"}).Return(int64(2), nil)

	added, err := NewService(repo, testCatalog()).Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)
}

func TestValidateAll(t *testing.T) {
	good := new(mockRepo)
	good.On("List", mock.Anything).Return(configs("ClientCreateBusinessEvent", "LoanApprovedBusinessEvent"), nil)
	bad := new(mockRepo)
	bad.On("List", mock.Anything).Return(nil, errors.New("connection refused"))

	valid, failures := ValidateAll(context.Background(), map[string]*Service{
		"a": NewService(good, testCatalog()),
		"b": NewService(bad, testCatalog()),
	}, logger.Nop())

	assert.Equal(t, []string{"a"}, valid)
	require.Contains(t, failures, "b")
}

package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres mysql"`
	Port   int    `json:"port,omitempty" validate:"min=1"`
	Tenant struct {
		ID string `mapstructure:"id" validate:"required"`
	} `mapstructure:"tenant"`
}

func TestDescribe_UsesConfigNames(t *testing.T) {
	err := New().Struct(sample{Driver: "oracle"})
	require.Error(t, err)

	msg := Describe(err)
	assert.Contains(t, msg, "driver failed oneof=postgres mysql")
	assert.Contains(t, msg, "port failed min=1")
	assert.Contains(t, msg, "tenant.id failed required")
}

func TestDescribe_Var(t *testing.T) {
	err := New().Var(map[string]bool{}, "required,min=1")
	require.Error(t, err)
	assert.Equal(t, "value failed min=1", Describe(err))
}

func TestNew_Shared(t *testing.T) {
	assert.Same(t, New(), New())
}

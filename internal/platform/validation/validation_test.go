package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "benefits/pkg/domain-errors"
)

type sample struct {
	Name   string `json:"name" validate:"required,max=5"`
	Amount int64  `json:"amount" validate:"gt=0"`
	Kind   string `json:"kind" validate:"omitempty,oneof=a b"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{Name: "ok", Amount: 1}))

	err := Struct(sample{Name: "", Amount: 0, Kind: "c"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "amount must be greater than 0")
	assert.Contains(t, err.Error(), "kind must be one of [a b]")
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

func TestNewTenant(t *testing.T) {
	now := time.Now()

	t.Run("normalizes code", func(t *testing.T) {
		tenant, err := NewTenant(" tgm ", "Tagum City Social Welfare", 1_000_000, now)
		require.NoError(t, err)
		assert.Equal(t, "TGM", tenant.Code)
		assert.True(t, tenant.IsActive)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		for _, tc := range []struct {
			code, name string
			budget     int64
		}{
			{"", "Tagum", 0},
			{"TGM", "", 0},
			{"TGM", "Tagum", -1},
		} {
			_, err := NewTenant(tc.code, tc.name, id.Money(tc.budget), now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		}
	})
}

func TestBudgetLedger(t *testing.T) {
	tenant := &Tenant{AllocatedBudget: 100_000, UsedBudget: 105_000}
	assert.Equal(t, id.Money(5_000), tenant.Overrun())
	assert.Equal(t, id.Money(0), tenant.Remaining())

	tenant.UsedBudget = 40_000
	report := tenant.Report()
	assert.Equal(t, id.Money(60_000), report.Remaining)
	assert.Equal(t, id.Money(0), report.Overrun)
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "benefits/pkg/domain-errors"
)

func TestMoneyString(t *testing.T) {
	cases := map[Money]string{
		0:         "0.00",
		5:         "0.05",
		500000:    "5,000.00",
		10500000:  "105,000.00",
		-12345:    "-123.45",
		100000000: "1,000,000.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, in.String())
	}
}

func TestParseMoney(t *testing.T) {
	t.Run("accepts peso amounts", func(t *testing.T) {
		for in, want := range map[string]Money{
			"5000":     500000,
			"5000.5":   500050,
			"1,250.75": 125075,
			" 0.01 ":   1,
		} {
			got, err := ParseMoney(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got, in)
		}
	})

	t.Run("rejects malformed amounts", func(t *testing.T) {
		for _, in := range []string{"", "abc", "1.234", "-5", "1.", "99999999999999999999"} {
			_, err := ParseMoney(in)
			require.Error(t, err, in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
		}
	})
}

package domain

import (
	"strconv"
	"strings"

	dErrors "benefits/pkg/domain-errors"
)

// Money is an amount in centavos.
type Money int64

// String renders m as pesos with two decimals, e.g. "1,050.00".
func (m Money) String() string {
	neg := m < 0
	if neg {
		m = -m
	}
	whole := strconv.FormatInt(int64(m)/100, 10)
	frac := int64(m) % 100

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

// ParseMoney parses a peso amount with at most two decimals ("5000", "5000.5",
// "1,250.75") into centavos.
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid amount %q", s)
	}
	if w > (1<<63-1-f)/100 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "amount %q out of range", s)
	}
	return Money(w*100 + f), nil
}

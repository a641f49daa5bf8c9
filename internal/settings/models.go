// Package settings serves runtime-tunable thresholds. Values live in the
// settings table, are cached as one map, and are re-read after every write so
// thresholds can be relaxed during calamity periods without a deploy.
package settings

import (
	"sort"
	"strconv"
	"strings"

	dErrors "benefits/pkg/domain-errors"
)

const (
	KeyLookbackDays                    = "risk.lookback_days"
	KeyDoubleDipWindowDays             = "risk.double_dip_window_days"
	KeyHighFrequencyThreshold          = "risk.high_frequency_threshold"
	KeyDuplicateDistanceThreshold      = "identity.duplicate_distance_threshold"
	KeyProbableDuplicateDistanceThresh = "identity.probable_duplicate_distance_threshold"
)

// Thresholds are the typed values consumed by identity matching and risk
// scoring.
type Thresholds struct {
	LookbackDays                       int
	DoubleDipWindowDays                int
	HighFrequencyThreshold             int
	DuplicateDistanceThreshold         int
	ProbableDuplicateDistanceThreshold int
}

// Defaults returns the values used when a key is missing or invalid.
func Defaults() Thresholds {
	return Thresholds{
		LookbackDays:                       90,
		DoubleDipWindowDays:                30,
		HighFrequencyThreshold:             3,
		DuplicateDistanceThreshold:         3,
		ProbableDuplicateDistanceThreshold: 5,
	}
}

type bounds struct{ min, max int }

var known = map[string]bounds{
	KeyLookbackDays:                    {1, 3650},
	KeyDoubleDipWindowDays:             {1, 3650},
	KeyHighFrequencyThreshold:          {1, 1000},
	KeyDuplicateDistanceThreshold:      {1, 64},
	KeyProbableDuplicateDistanceThresh: {1, 64},
}

// Keys lists every recognized setting.
func Keys() []string {
	out := make([]string, 0, len(known))
	for k := range known {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks that key is recognized and value is in range.
func Validate(key, value string) error {
	b, ok := known[key]
	if !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown setting %q", key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return dErrors.Newf(dErrors.CodeValidation, "setting %s must be an integer", key)
	}
	if n < b.min || n > b.max {
		return dErrors.Newf(dErrors.CodeValidation, "setting %s must be between %d and %d", key, b.min, b.max)
	}
	return nil
}

// Parse overlays raw on Defaults. Invalid entries keep their default and are
// returned in invalid so the caller can log them.
func Parse(raw map[string]string) (t Thresholds, invalid []string) {
	t = Defaults()
	fields := map[string]*int{
		KeyLookbackDays:                    &t.LookbackDays,
		KeyDoubleDipWindowDays:             &t.DoubleDipWindowDays,
		KeyHighFrequencyThreshold:          &t.HighFrequencyThreshold,
		KeyDuplicateDistanceThreshold:      &t.DuplicateDistanceThreshold,
		KeyProbableDuplicateDistanceThresh: &t.ProbableDuplicateDistanceThreshold,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if err := Validate(key, v); err != nil {
			invalid = append(invalid, key)
			continue
		}
		*dst, _ = strconv.Atoi(strings.TrimSpace(v))
	}
	sort.Strings(invalid)
	return t, invalid
}

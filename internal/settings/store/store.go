// Package store persists raw settings rows.
package store

import (
	"time"

	id "benefits/pkg/domain"
)

// Row is one stored setting.
type Row struct {
	Key       string
	Value     string
	UpdatedBy id.UserID
	UpdatedAt time.Time
}

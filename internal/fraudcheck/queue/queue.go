// Package queue carries fraud-check tasks from claim intake to the worker
// pool. Delivery is at-least-once; the claim write-back guard makes
// redelivery harmless.
package queue

import (
	"context"
	"errors"

	"benefits/internal/fraudcheck/models"
)

// ErrClosed is returned by Enqueue after the queue has been closed.
var ErrClosed = errors.New("fraud check queue closed")

// Handler processes one task. Returning an error leaves the task
// unacknowledged.
type Handler func(ctx context.Context, task models.Task) error

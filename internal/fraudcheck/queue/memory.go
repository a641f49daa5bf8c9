package queue

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"benefits/internal/fraudcheck/models"
)

// ErrFull is returned when the in-memory buffer has no room.
var ErrFull = errors.New("fraud check queue full")

// Memory is a buffered channel queue for single-process runs and tests.
// Tasks are lost on restart.
type Memory struct {
	tasks   chan models.Task
	workers int

	mu     sync.RWMutex
	closed bool
}

func NewMemory(buffer, workers int) *Memory {
	if workers <= 0 {
		workers = 1
	}
	return &Memory{tasks: make(chan models.Task, buffer), workers: workers}
}

// Enqueue never blocks: a full buffer is reported as ErrFull.
func (q *Memory) Enqueue(ctx context.Context, task models.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

// Consume runs handler on the configured number of goroutines until ctx is
// cancelled or the queue is closed and drained. A task whose handler fails
// is put back at the end of the buffer.
func (q *Memory) Consume(ctx context.Context, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case task, ok := <-q.tasks:
					if !ok {
						return nil
					}
					if err := handler(ctx, task); err != nil && ctx.Err() == nil {
						if requeueErr := q.Enqueue(context.Background(), task); requeueErr != nil && !errors.Is(requeueErr, ErrClosed) {
							return requeueErr
						}
					}
				}
			}
		})
	}
	return g.Wait()
}

// Len reports buffered tasks.
func (q *Memory) Len() int {
	return len(q.tasks)
}

// Close stops accepting tasks. Consumers drain what is buffered.
func (q *Memory) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}

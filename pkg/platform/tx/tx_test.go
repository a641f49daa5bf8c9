package tx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, ctx, WithTx(ctx, nil))
	_, ok := From(ctx)
	assert.False(t, ok)

	tx := &sqlx.Tx{}
	got, ok := From(WithTx(ctx, tx))
	require.True(t, ok)
	assert.Same(t, tx, got)
}

func TestPickFallsBackToDB(t *testing.T) {
	db := &sqlx.DB{}
	assert.Same(t, db, Pick(context.Background(), db))

	tx := &sqlx.Tx{}
	assert.Same(t, tx, Pick(WithTx(context.Background(), tx), db))
}

func TestLockRunner(t *testing.T) {
	t.Run("serializes read-modify-write", func(t *testing.T) {
		var r LockRunner
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.RunInTx(context.Background(), func(context.Context) error {
					v := counter
					counter = v + 1
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
	})

	t.Run("nested call does not deadlock", func(t *testing.T) {
		var r LockRunner
		err := r.RunInTx(context.Background(), func(ctx context.Context) error {
			return r.RunInTx(ctx, func(context.Context) error { return nil })
		})
		assert.NoError(t, err)
	})

	t.Run("returns fn error", func(t *testing.T) {
		var r LockRunner
		boom := errors.New("boom")
		assert.ErrorIs(t, r.RunInTx(context.Background(), func(context.Context) error { return boom }), boom)
	})
	t.Run("view waits for a running transaction", func(t *testing.T) {
		var r LockRunner
		inTx := make(chan struct{})
		commit := make(chan struct{})
		var committed atomic.Bool
		go func() {
			_ = r.RunInTx(context.Background(), func(context.Context) error {
				close(inTx)
				<-commit
				committed.Store(true)
				return nil
			})
		}()
		<-inTx
		go func() {
			time.Sleep(20 * time.Millisecond)
			close(commit)
		}()

		release := r.View(context.Background())
		defer release()
		assert.True(t, committed.Load())
	})

	t.Run("view inside a transaction takes nothing", func(t *testing.T) {
		var r LockRunner
		err := r.RunInTx(context.Background(), func(ctx context.Context) error {
			r.View(ctx)()
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("nil runner view is a no-op", func(t *testing.T) {
		var r *LockRunner
		r.View(context.Background())()
	})
}

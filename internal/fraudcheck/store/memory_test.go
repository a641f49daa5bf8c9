package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefits/internal/fraudcheck/models"
)

func TestInMemoryList(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now()
	first := models.DeadLetter{TaskID: uuid.New(), ClaimID: 1, Attempts: 3, FailedAt: now.Add(-time.Minute)}
	second := models.DeadLetter{TaskID: uuid.New(), ClaimID: 2, Attempts: 1, FailedAt: now}
	require.NoError(t, s.Record(ctx, first))
	require.NoError(t, s.Record(ctx, second))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []models.DeadLetter{second, first}, all)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.DeadLetter{second}, limited)
}

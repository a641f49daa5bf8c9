package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "benefits/pkg/domain"
)

func TestCaller(t *testing.T) {
	ctx := context.Background()

	_, ok := CallerFrom(ctx)
	assert.False(t, ok)
	assert.True(t, UserID(ctx).IsNil())

	user := id.UserID(uuid.New())
	ctx = WithCaller(ctx, TenantCaller(user, 4))

	c, ok := CallerFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, id.TenantID(4), c.TenantID)
	assert.False(t, c.ProvinceWide)
	assert.Equal(t, user, UserID(ctx))
}

func TestNow(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}

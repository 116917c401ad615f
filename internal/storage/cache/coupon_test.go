package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/storage/memory"
)

type countingStore struct {
	coupon.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, code string) (coupon.Coupon, error) {
	s.gets++
	return s.Store.Get(ctx, code)
}

func TestCouponStore_CachesHits(t *testing.T) {
	next := &countingStore{Store: memory.NewCouponStore()}
	s := New(next, time.Minute, time.Minute)
	ctx := context.Background()

	_, err := next.Insert(ctx, coupon.Coupon{Code: "1111", Discount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	for range 3 {
		c, err := s.Get(ctx, "1111")
		require.NoError(t, err)
		assert.Equal(t, "1111", c.Code)
	}
	assert.Equal(t, 1, next.gets)
	assert.Equal(t, 1, s.Len())
}

func TestCouponStore_DoesNotCacheMisses(t *testing.T) {
	next := &countingStore{Store: memory.NewCouponStore()}
	s := New(next, time.Minute, time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "late")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	// Inserted behind the cache's back, e.g. by another instance.
	_, err = next.Insert(ctx, coupon.Coupon{Code: "late"})
	require.NoError(t, err)

	c, err := s.Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, "late", c.Code)
	assert.Equal(t, 2, next.gets)
}

func TestCouponStore_InsertPopulatesCache(t *testing.T) {
	next := &countingStore{Store: memory.NewCouponStore()}
	s := New(next, time.Minute, time.Minute)
	ctx := context.Background()

	_, err := s.Insert(ctx, coupon.Coupon{Code: "new"})
	require.NoError(t, err)

	_, err = s.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 0, next.gets)
}

func TestCouponStore_InsertDuplicatePassesThrough(t *testing.T) {
	s := New(memory.NewCouponStore(), time.Minute, time.Minute)
	ctx := context.Background()

	_, err := s.Insert(ctx, coupon.Coupon{Code: "dup"})
	require.NoError(t, err)

	_, err = s.Insert(ctx, coupon.Coupon{Code: "dup"})
	require.True(t, errors.Is(err, coupon.ErrDuplicateCode))
}

func TestCouponStore_Ping(t *testing.T) {
	s := New(memory.NewCouponStore(), time.Minute, time.Minute)
	require.NoError(t, s.Ping(context.Background()))
}

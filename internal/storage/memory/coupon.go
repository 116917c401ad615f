// Package memory provides an in-process coupon store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

var _ coupon.Store = (*CouponStore)(nil)

// CouponStore is a coupon.Store kept in a map. It is safe for concurrent use.
type CouponStore struct {
	mu      sync.RWMutex
	coupons map[string]coupon.Coupon
	now     func() time.Time
}

// NewCouponStore returns an empty CouponStore.
func NewCouponStore() *CouponStore {
	return &CouponStore{
		coupons: make(map[string]coupon.Coupon),
		now:     time.Now,
	}
}

// Get returns coupon.ErrNotFound when code is not stored.
func (s *CouponStore) Get(ctx context.Context, code string) (coupon.Coupon, error) {
	if err := ctx.Err(); err != nil {
		return coupon.Coupon{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[code]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return c, nil
}

// Insert checks and stores under one write lock, so concurrent inserts of the
// same code see exactly one success.
func (s *CouponStore) Insert(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Checked under the lock: a cancelled insert never lands.
	if err := ctx.Err(); err != nil {
		return coupon.Coupon{}, err
	}
	if _, ok := s.coupons[c.Code]; ok {
		return coupon.Coupon{}, coupon.ErrDuplicateCode
	}

	c.CreatedAt = s.now().UTC()
	s.coupons[c.Code] = c
	return c, nil
}

// Len returns the number of stored coupons.
func (s *CouponStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.coupons)
}

// Ping always succeeds.
func (s *CouponStore) Ping(context.Context) error {
	return nil
}

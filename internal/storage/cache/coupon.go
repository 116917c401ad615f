// Package cache provides a read-through cache in front of a coupon.Store.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const keyPrefix = "coupon:v1:"

var _ coupon.Store = (*CouponStore)(nil)

// CouponStore caches coupons returned by the wrapped store. Coupons are
// immutable once stored, so hits never go stale. Misses are not cached: a
// code created by another instance must become visible immediately.
type CouponStore struct {
	next  coupon.Store
	items *gocache.Cache
	ttl   time.Duration
}

// New wraps next with a cache whose entries live for ttl and are swept every
// cleanup interval.
func New(next coupon.Store, ttl, cleanup time.Duration) *CouponStore {
	return &CouponStore{
		next:  next,
		items: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

// Get serves code from the cache or falls through to the wrapped store.
func (s *CouponStore) Get(ctx context.Context, code string) (coupon.Coupon, error) {
	if v, ok := s.items.Get(keyPrefix + code); ok {
		return v.(coupon.Coupon), nil
	}

	c, err := s.next.Get(ctx, code)
	if err != nil {
		return coupon.Coupon{}, err
	}
	s.items.Set(keyPrefix+code, c, s.ttl)
	return c, nil
}

// Insert writes through to the wrapped store and caches the stored coupon.
func (s *CouponStore) Insert(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	stored, err := s.next.Insert(ctx, c)
	if err != nil {
		return coupon.Coupon{}, err
	}
	s.items.Set(keyPrefix+stored.Code, stored, s.ttl)
	return stored, nil
}

// Ping delegates to the wrapped store when it supports it.
func (s *CouponStore) Ping(ctx context.Context) error {
	if p, ok := s.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Len returns the number of cached coupons, including expired ones not yet
// swept.
func (s *CouponStore) Len() int {
	return s.items.ItemCount()
}

// Package seed loads sample coupons and API keys into a fresh deployment.
package seed

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/domain/auth"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// DefaultKeyID identifies the seeded API key.
const DefaultKeyID = "default"

type couponJSON struct {
	Code           string          `json:"code"`
	Discount       decimal.Decimal `json:"discount"`
	MinBasketValue decimal.Decimal `json:"minBasketValue"`
}

// Creator registers coupons.
type Creator interface {
	Create(ctx context.Context, in coupon.NewCoupon) (coupon.Creation, error)
}

// KeyStore persists API keys.
type KeyStore interface {
	Upsert(ctx context.Context, info auth.APIKeyInfo) error
}

// Coupons creates every coupon in data, a JSON array. Coupons that already
// exist are left untouched, so seeding is idempotent.
func Coupons(ctx context.Context, lg *zap.Logger, creator Creator, data []byte) (created int, err error) {
	var coupons []couponJSON
	if err := json.Unmarshal(data, &coupons); err != nil {
		return 0, errors.Wrap(err, "parse coupons JSON")
	}

	for _, c := range coupons {
		res, err := creator.Create(ctx, coupon.NewCoupon{
			Code:           c.Code,
			Discount:       c.Discount,
			MinBasketValue: c.MinBasketValue,
		})
		if err != nil {
			return created, errors.Wrapf(err, "create coupon %s", c.Code)
		}
		if res.Status == coupon.StatusCreated {
			created++
		}
		lg.Info("Seeded coupon",
			zap.String("code", res.Coupon.Code),
			zap.Stringer("status", res.Status),
		)
	}
	return created, nil
}

// APIKey stores key, hashed with pepper, under DefaultKeyID with the given
// scopes.
func APIKey(ctx context.Context, keys KeyStore, key string, pepper []byte, scopes ...string) error {
	if key == "" {
		return errors.New("empty API key")
	}
	if err := keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      DefaultKeyID,
		KeyHash: auth.HashKey(key, pepper),
		Name:    "Default key",
		Scopes:  scopes,
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	return nil
}

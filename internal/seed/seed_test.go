package seed

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/db"
	"github.com/xenking/coupon-service/internal/domain/auth"
	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/storage/memory"
)

func TestCoupons_EmbeddedSeed(t *testing.T) {
	store := memory.NewCouponStore()
	m, err := coupon.NewManager(store, coupon.NewLookup(store), nil)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := Coupons(ctx, zap.NewNop(), m, db.SeedCoupons)
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	c, err := store.Get(ctx, "welcome5")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(c.Discount))
	assert.True(t, decimal.NewFromInt(20).Equal(c.MinBasketValue))

	// Re-seeding is a no-op.
	created, err = Coupons(ctx, zap.NewNop(), m, db.SeedCoupons)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, 4, store.Len())
}

func TestCoupons_BadJSON(t *testing.T) {
	_, err := Coupons(context.Background(), zap.NewNop(), nil, []byte(`{"code":`))
	require.Error(t, err)
}

type recordingKeys struct {
	got auth.APIKeyInfo
	err error
}

func (r *recordingKeys) Upsert(_ context.Context, info auth.APIKeyInfo) error {
	r.got = info
	return r.err
}

func TestAPIKey(t *testing.T) {
	keys := &recordingKeys{}
	pepper := []byte("pepper")

	require.NoError(t, APIKey(context.Background(), keys, "secret", pepper, "create_coupon"))
	assert.Equal(t, DefaultKeyID, keys.got.ID)
	assert.Equal(t, auth.HashKey("secret", pepper), keys.got.KeyHash)
	assert.True(t, keys.got.HasScope("create_coupon"))

	require.Error(t, APIKey(context.Background(), keys, "", pepper))

	keys.err = errors.New("db down")
	require.Error(t, APIKey(context.Background(), keys, "secret", pepper))
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const (
	getCouponSQL = `SELECT code, discount, min_basket_value, created_at
		FROM coupons WHERE code = $1`

	// ON CONFLICT DO NOTHING turns the insert into a compare-and-insert: a
	// taken code returns no row instead of aborting the statement.
	insertCouponSQL = `INSERT INTO coupons (code, discount, min_basket_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING
		RETURNING code, discount, min_basket_value, created_at`

	uniqueViolation = "23505"
)

var _ coupon.Store = (*CouponStore)(nil)

// CouponStore implements coupon.Store backed by PostgreSQL.
type CouponStore struct {
	pool *pgxpool.Pool
}

// NewCouponStore returns a CouponStore that uses the given pool.
func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

// Get looks up a coupon by its already normalized code.
// Returns coupon.ErrNotFound when no row matches.
func (s *CouponStore) Get(ctx context.Context, code string) (coupon.Coupon, error) {
	rows, err := s.pool.Query(ctx, getCouponSQL, code)
	if err != nil {
		return coupon.Coupon{}, fmt.Errorf("getting coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.Coupon{}, coupon.ErrNotFound
		}
		return coupon.Coupon{}, fmt.Errorf("getting coupon %q: %w", code, err)
	}
	return c, nil
}

// Insert stores c and returns the stored row. It returns
// coupon.ErrDuplicateCode when the code is already present.
func (s *CouponStore) Insert(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	rows, err := s.pool.Query(ctx, insertCouponSQL, c.Code, c.Discount, c.MinBasketValue)
	if err != nil {
		return coupon.Coupon{}, mapInsertError(c.Code, err)
	}

	stored, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.Coupon{}, coupon.ErrDuplicateCode
		}
		return coupon.Coupon{}, mapInsertError(c.Code, err)
	}
	return stored, nil
}

// Ping reports whether the database is reachable.
func (s *CouponStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func mapInsertError(code string, err error) error {
	if isUniqueViolation(err) {
		return coupon.ErrDuplicateCode
	}
	return fmt.Errorf("inserting coupon %q: %w", code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.Code, &c.Discount, &c.MinBasketValue, &c.CreatedAt)
	return c, err
}

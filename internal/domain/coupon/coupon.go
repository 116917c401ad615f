package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by a Store when no coupon has the requested code.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned by a Store when an insert targets a code
	// that is already stored.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidCoupon is returned when creation input is malformed: a blank
	// code or a negative amount.
	ErrInvalidCoupon = errors.New("invalid coupon")
)

// Coupon is a flat discount identified by its lower-cased code.
type Coupon struct {
	Code           string
	Discount       decimal.Decimal
	MinBasketValue decimal.Decimal
	CreatedAt      time.Time
}

// Basket is a caller-supplied total together with its discount state.
type Basket struct {
	Value                 decimal.Decimal
	AppliedDiscount       decimal.Decimal
	ApplicationSuccessful bool
}

// Store is the persistence boundary for coupons. Implementations must be safe
// for concurrent use and must enforce code uniqueness on Insert.
type Store interface {
	// Get returns ErrNotFound when no coupon has the given code.
	Get(ctx context.Context, code string) (Coupon, error)
	// Insert returns ErrDuplicateCode when the code is already present.
	Insert(ctx context.Context, c Coupon) (Coupon, error)
}

// StoreError wraps a Store failure other than ErrNotFound or ErrDuplicateCode.
type StoreError struct {
	Op   string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("coupon store %s %q: %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NormalizeCode returns the canonical form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

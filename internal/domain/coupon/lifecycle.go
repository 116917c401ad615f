package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const tracerName = "github.com/xenking/coupon-service/internal/domain/coupon"

// Status is the outcome of a creation request.
type Status int

const (
	// StatusCreated means a new coupon was stored.
	StatusCreated Status = iota + 1
	// StatusDuplicate means a coupon with the same code already exists and the
	// store was left untouched.
	StatusDuplicate
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// NewCoupon holds the input for creating a coupon.
type NewCoupon struct {
	Code           string
	Discount       decimal.Decimal
	MinBasketValue decimal.Decimal
}

// Creation is the result of Manager.Create. For StatusCreated, Coupon is the
// stored record. For StatusDuplicate it is the existing record when the
// duplicate was detected by lookup, or just the normalized code when the
// store rejected the insert.
type Creation struct {
	Status Status
	Coupon Coupon
}

// Manager creates coupons, enforcing code uniqueness.
type Manager struct {
	store   Store
	lookup  *Lookup
	created metric.Int64Counter
}

// NewManager creates a Manager. The meter may be nil.
func NewManager(store Store, lookup *Lookup, meter metric.Meter) (*Manager, error) {
	m := &Manager{store: store, lookup: lookup}
	if meter == nil {
		return m, nil
	}

	counter, err := meter.Int64Counter("coupon.create",
		metric.WithDescription("Coupon creation requests by status"),
	)
	if err != nil {
		return nil, err
	}
	m.created = counter
	return m, nil
}

// Create stores a new coupon unless its code is already taken.
//
// The existence check only avoids a pointless insert: uniqueness is decided
// by the store, and an insert rejected with ErrDuplicateCode is reported as
// StatusDuplicate. Any other store failure is returned as *StoreError.
func (m *Manager) Create(ctx context.Context, req NewCoupon) (Creation, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return Creation{}, errors.Wrap(ErrInvalidCoupon, "blank code")
	}
	if req.Discount.IsNegative() || req.MinBasketValue.IsNegative() {
		return Creation{}, errors.Wrap(ErrInvalidCoupon, "negative amount")
	}

	lg := zctx.From(ctx).With(zap.String("code", code))

	existing, ok, err := m.lookup.FindByCode(ctx, code)
	if err != nil {
		return Creation{}, err
	}
	if ok {
		lg.Debug("Coupon code already taken")
		return m.record(ctx, Creation{Status: StatusDuplicate, Coupon: existing}), nil
	}

	stored, err := m.store.Insert(ctx, Coupon{
		Code:           code,
		Discount:       req.Discount,
		MinBasketValue: req.MinBasketValue,
	})
	switch {
	case err == nil:
		lg.Info("Coupon created")
		return m.record(ctx, Creation{Status: StatusCreated, Coupon: stored}), nil
	case errors.Is(err, ErrDuplicateCode):
		lg.Warn("Coupon insert lost race to concurrent create")
		return m.record(ctx, Creation{Status: StatusDuplicate, Coupon: Coupon{Code: code}}), nil
	default:
		return Creation{}, &StoreError{Op: "insert", Code: code, Err: err}
	}
}

func (m *Manager) record(ctx context.Context, c Creation) Creation {
	if m.created != nil {
		m.created.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", c.Status.String()),
		))
	}
	return c
}

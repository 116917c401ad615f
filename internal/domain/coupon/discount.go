package coupon

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Outcome classifies the result of applying a coupon code to a basket.
type Outcome int

const (
	// OutcomeApplied means the discount was applied to the basket.
	OutcomeApplied Outcome = iota + 1
	// OutcomeNotApplied means the coupon exists but the basket value is zero
	// or below the coupon's minimum basket value.
	OutcomeNotApplied
	// OutcomeCouponNotFound means no coupon matches the code.
	OutcomeCouponNotFound
	// OutcomeInvalidBasket means the basket value is negative.
	OutcomeInvalidBasket
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNotApplied:
		return "not_applied"
	case OutcomeCouponNotFound:
		return "coupon_not_found"
	case OutcomeInvalidBasket:
		return "invalid_basket"
	default:
		return "unknown"
	}
}

// Application is the result of Engine.Apply. Basket is always a copy; the
// caller's basket is never modified.
type Application struct {
	Outcome Outcome
	Basket  Basket
	// Coupon is set unless Outcome is OutcomeCouponNotFound.
	Coupon Coupon
}

// Applicable reports whether a coupon was found and the basket was valid,
// regardless of whether the discount ended up being applied.
func (a Application) Applicable() bool {
	return a.Outcome == OutcomeApplied || a.Outcome == OutcomeNotApplied
}

// Apply evaluates c against b and returns the resulting basket.
//
// A negative value is invalid. A strictly positive value that meets or
// exceeds the minimum gets the full discount. Zero, or a value below the
// minimum, leaves the basket unchanged.
func Apply(c Coupon, b Basket) (Basket, Outcome) {
	switch {
	case b.Value.IsNegative():
		return b, OutcomeInvalidBasket
	case b.Value.IsPositive() && b.Value.GreaterThanOrEqual(c.MinBasketValue):
		b.AppliedDiscount = c.Discount
		b.ApplicationSuccessful = true
		return b, OutcomeApplied
	default:
		return b, OutcomeNotApplied
	}
}

// Engine applies stored coupons to baskets.
type Engine struct {
	lookup  *Lookup
	applied metric.Int64Counter
}

// NewEngine creates an Engine resolving codes through lookup. The meter may
// be nil.
func NewEngine(lookup *Lookup, meter metric.Meter) (*Engine, error) {
	e := &Engine{lookup: lookup}
	if meter == nil {
		return e, nil
	}

	counter, err := meter.Int64Counter("coupon.apply",
		metric.WithDescription("Coupon applications by outcome"),
	)
	if err != nil {
		return nil, err
	}
	e.applied = counter
	return e, nil
}

// Apply resolves code and applies the coupon to basket. Only store failures
// are returned as errors; every domain outcome is reported in the result.
func (e *Engine) Apply(ctx context.Context, basket Basket, code string) (Application, error) {
	c, ok, err := e.lookup.FindByCode(ctx, code)
	if err != nil {
		return Application{}, err
	}

	res := Application{Outcome: OutcomeCouponNotFound, Basket: basket}
	if ok {
		res.Coupon = c
		res.Basket, res.Outcome = Apply(c, basket)
	}

	zctx.From(ctx).Debug("Coupon evaluated",
		zap.String("code", NormalizeCode(code)),
		zap.Stringer("outcome", res.Outcome),
		zap.Stringer("basket_value", basket.Value),
	)
	if e.applied != nil {
		e.applied.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", res.Outcome.String()),
		))
	}
	return res, nil
}

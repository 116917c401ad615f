package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// DefaultLookupConcurrency bounds parallel store reads in FindAllByCodes.
const DefaultLookupConcurrency = 8

// LookupOption configures a Lookup.
type LookupOption func(*Lookup)

// WithConcurrency sets the maximum number of store reads FindAllByCodes runs
// at once. Values below 1 mean sequential lookups.
func WithConcurrency(n int) LookupOption {
	return func(l *Lookup) {
		if n < 1 {
			n = 1
		}
		l.concurrency = n
	}
}

// WithLookupTracer sets the tracer used for lookup spans.
func WithLookupTracer(tp trace.TracerProvider) LookupOption {
	return func(l *Lookup) {
		l.tracer = tp.Tracer(tracerName)
	}
}

// Lookup resolves coupon codes against a Store.
type Lookup struct {
	store       Store
	concurrency int
	tracer      trace.Tracer
}

// NewLookup creates a Lookup backed by the given Store.
func NewLookup(store Store, opts ...LookupOption) *Lookup {
	l := &Lookup{
		store:       store,
		concurrency: DefaultLookupConcurrency,
		tracer:      noop.NewTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindByCode looks up a single coupon. The code is normalized first, so the
// lookup is case-insensitive. The boolean reports whether a coupon was found.
func (l *Lookup) FindByCode(ctx context.Context, code string) (Coupon, bool, error) {
	code = NormalizeCode(code)

	c, err := l.store.Get(ctx, code)
	switch {
	case err == nil:
		return c, true, nil
	case errors.Is(err, ErrNotFound):
		return Coupon{}, false, nil
	default:
		return Coupon{}, false, &StoreError{Op: "get", Code: code, Err: err}
	}
}

// FindAllByCodes resolves every code and returns the found coupons in input
// order. Codes without a match are skipped, duplicates resolve once per
// occurrence. The first store failure aborts the whole batch.
func (l *Lookup) FindAllByCodes(ctx context.Context, codes []string) ([]Coupon, error) {
	ctx, span := l.tracer.Start(ctx, "coupon.FindAllByCodes",
		trace.WithAttributes(attribute.Int("coupon.codes", len(codes))),
	)
	defer span.End()

	type slot struct {
		coupon Coupon
		found  bool
	}
	slots := make([]slot, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, code := range codes {
		g.Go(func() error {
			c, ok, err := l.FindByCode(gctx, code)
			if err != nil {
				return err
			}
			slots[i] = slot{coupon: c, found: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	found := make([]Coupon, 0, len(codes))
	for _, s := range slots {
		if s.found {
			found = append(found, s.coupon)
		}
	}
	span.SetAttributes(attribute.Int("coupon.found", len(found)))
	return found, nil
}

// Package ingest bulk-imports coupons from gzip compressed CSV files.
//
// Files hold "code,discount,min_basket_value" rows, optionally preceded by a
// header. Import runs in two passes. Pass one builds a bloom filter per file.
// Pass two streams every file again and creates coupons through the
// lifecycle manager. A code whose bloom test hits another file is tracked
// exactly, so codes shared between files are imported once. Codes already in
// the store are reported as duplicates, never as failures.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// Creator registers coupons.
type Creator interface {
	Create(ctx context.Context, in coupon.NewCoupon) (coupon.Creation, error)
}

// Record is one parsed CSV row.
type Record struct {
	Line int
	coupon.NewCoupon
}

// Stats summarizes an import.
type Stats struct {
	Rows      int64
	Created   int64
	Duplicate int64
	// CrossFile counts rows skipped because another file already carried the
	// code in this run.
	CrossFile int64
	Invalid   int64
}

// Options tune the bloom filters.
type Options struct {
	// ExpectedCodes per file. Defaults to 1_000_000.
	ExpectedCodes uint
	// FalsePositiveRate defaults to 0.001.
	FalsePositiveRate float64
	// ProgressEvery logs progress every n rows per file. Zero disables it.
	ProgressEvery int64
}

// Importer runs imports.
type Importer struct {
	creator Creator
	lg      *zap.Logger
	opts    Options
}

// New returns an Importer creating coupons with creator.
func New(creator Creator, lg *zap.Logger, opts Options) *Importer {
	if opts.ExpectedCodes == 0 {
		opts.ExpectedCodes = 1_000_000
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = 0.001
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Importer{creator: creator, lg: lg, opts: opts}
}

type stats struct {
	rows, created, duplicate, crossFile, invalid atomic.Int64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Rows:      s.rows.Load(),
		Created:   s.created.Load(),
		Duplicate: s.duplicate.Load(),
		CrossFile: s.crossFile.Load(),
		Invalid:   s.invalid.Load(),
	}
}

// Import imports files. Files are processed concurrently. The returned Stats
// are valid even when an error is returned.
func (im *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	var st stats

	im.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return st.snapshot(), errors.Wrap(err, "build bloom filters")
	}

	im.lg.Info("Pass 2: importing coupons")
	claims := newCrossFileClaims(filters)

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			return im.importFile(gctx, i, path, claims, &st)
		})
	}
	if err := g.Wait(); err != nil {
		return st.snapshot(), err
	}
	return st.snapshot(), nil
}

// crossFileClaims assigns each code that may occur in several files to the
// first file importing it.
type crossFileClaims struct {
	filters []*bloom.BloomFilter

	mu    sync.Mutex
	owner map[string]int
}

func newCrossFileClaims(filters []*bloom.BloomFilter) *crossFileClaims {
	return &crossFileClaims{filters: filters, owner: make(map[string]int)}
}

// claim reports whether file idx may import code. It is false only when
// another file already claimed it. Repeats within the claiming file are
// allowed through and resolve as store duplicates.
func (c *crossFileClaims) claim(idx int, code string) bool {
	if !seenElsewhere(c.filters, idx, code) {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owner[code]; ok {
		return owner == idx
	}
	c.owner[code] = idx
	return true
}

func seenElsewhere(filters []*bloom.BloomFilter, idx int, code string) bool {
	for j, f := range filters {
		if j != idx && f.TestString(code) {
			return true
		}
	}
	return false
}

func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(im.opts.ExpectedCodes, im.opts.FalsePositiveRate)
			var n int64
			err := ReadFile(ctx, path, func(r Record) error {
				f.AddString(coupon.NormalizeCode(r.Code))
				n++
				return nil
			}, func(int, error) {})
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}

			im.lg.Info("Pass 1 file done", zap.String("file", path), zap.Int64("codes", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (im *Importer) importFile(
	ctx context.Context,
	idx int,
	path string,
	claims *crossFileClaims,
	st *stats,
) error {
	lg := im.lg.With(zap.String("file", path))
	var n int64

	onInvalid := func(line int, err error) {
		st.rows.Add(1)
		st.invalid.Add(1)
		lg.Debug("Skipping invalid row", zap.Int("line", line), zap.Error(err))
	}
	err := ReadFile(ctx, path, func(r Record) error {
		st.rows.Add(1)
		if n++; im.opts.ProgressEvery > 0 && n%im.opts.ProgressEvery == 0 {
			lg.Info("Pass 2 progress", zap.Int64("rows", n))
		}

		if !claims.claim(idx, coupon.NormalizeCode(r.Code)) {
			st.crossFile.Add(1)
			return nil
		}

		res, err := im.creator.Create(ctx, r.NewCoupon)
		switch {
		case errors.Is(err, coupon.ErrInvalidCoupon):
			st.invalid.Add(1)
			lg.Debug("Skipping invalid coupon", zap.Int("line", r.Line), zap.Error(err))
			return nil
		case err != nil:
			return errors.Wrapf(err, "create coupon at line %d", r.Line)
		case res.Status == coupon.StatusDuplicate:
			st.duplicate.Add(1)
		default:
			st.created.Add(1)
		}
		return nil
	}, onInvalid)
	if err != nil {
		return errors.Wrapf(err, "import %s", path)
	}

	lg.Info("Pass 2 file done", zap.Int64("rows", n))
	return nil
}

// ReadFile streams the gzip CSV file at path. Rows that do not parse are
// passed to onInvalid and skipped.
func ReadFile(ctx context.Context, path string, fn func(Record) error, onInvalid func(line int, err error)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return readCSV(ctx, gz, fn, onInvalid)
}

func readCSV(ctx context.Context, r io.Reader, fn func(Record) error, onInvalid func(line int, err error)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			onInvalid(line, err)
			continue
		}
		if err != nil {
			return errors.Wrap(err, "read csv")
		}
		if line == 1 && isHeader(fields) {
			continue
		}

		rec, err := parseRecord(line, fields)
		if err != nil {
			onInvalid(line, err)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func isHeader(fields []string) bool {
	return len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "code")
}

func parseRecord(line int, fields []string) (Record, error) {
	if len(fields) != 3 {
		return Record{}, errors.Errorf("expected 3 fields, got %d", len(fields))
	}
	discount, err := decimal.NewFromString(strings.TrimSpace(fields[1]))
	if err != nil {
		return Record{}, errors.Wrap(err, "discount")
	}
	minValue, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return Record{}, errors.Wrap(err, "min_basket_value")
	}
	// Rejected here so an invalid row never claims a code shared with
	// another file.
	switch {
	case strings.TrimSpace(fields[0]) == "":
		return Record{}, errors.New("empty code")
	case discount.IsNegative() || minValue.IsNegative():
		return Record{}, errors.New("negative amount")
	}
	return Record{
		Line: line,
		NewCoupon: coupon.NewCoupon{
			Code:           fields[0],
			Discount:       discount,
			MinBasketValue: minValue,
		},
	}, nil
}

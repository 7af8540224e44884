package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minCodeLen    = 4
	maxCodeLen    = 32
	progressEvery = 1_000_000
)

// record is one parsed line of a coupon file.
type record struct {
	Code   string
	Amount decimal.Decimal
}

// parseLine reads "CODE" or "CODE,AMOUNT". Blank lines and lines starting
// with # are skipped (ok=false, err=nil).
func parseLine(line string, defaultAmount decimal.Decimal) (rec record, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rec, false, nil
	}
	code, amount, hasAmount := strings.Cut(line, ",")
	code = strings.TrimSpace(code)
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return rec, false, errors.Errorf("code %q: length must be %d..%d", code, minCodeLen, maxCodeLen)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return rec, false, errors.Errorf("code %q: only A-Z and 0-9 allowed", code)
		}
	}
	rec = record{Code: code, Amount: defaultAmount}
	if hasAmount {
		v, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return rec, false, errors.Errorf("code %q: invalid amount %q", code, amount)
		}
		rec.Amount = v
	}
	if rec.Amount.IsNegative() {
		return rec, false, errors.Errorf("code %q: negative amount", code)
	}
	return rec, true, nil
}

// importer scans gzip-compressed coupon lists. A code listed in more than
// one file is a conflict and is not imported.
type importer struct {
	lg            *zap.Logger
	files         []string
	defaultAmount decimal.Decimal
	capacity      uint
	fpRate        float64
}

// result is the outcome of a scan.
type result struct {
	Records   []record
	Conflicts []string
	// Invalid counts skipped malformed lines.
	Invalid int
}

func (im *importer) run(ctx context.Context) (*result, error) {
	if len(im.files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files per run", bits.UintSize)
	}
	filters, err := im.buildFilters(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}
	return im.collect(ctx, filters)
}

// buildFilters creates one bloom filter per file, concurrently.
func (im *importer) buildFilters(ctx context.Context) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(im.files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range im.files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.capacity, im.fpRate)
			var count int
			err := im.scan(ctx, path, func(rec record) {
				filter.AddString(rec.Code)
				count++
			}, nil)
			if err != nil {
				return err
			}
			im.lg.Info("Bloom filter built", zap.String("file", path), zap.Int("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// fileScan holds what one file contributed in the second pass.
type fileScan struct {
	unique     []record
	candidates map[string]record
	invalid    int
}

// collect re-reads every file. Codes that may exist in another file are held
// back as candidates and resolved exactly once all files are read.
func (im *importer) collect(ctx context.Context, filters []*bloom.BloomFilter) (*result, error) {
	scans := make([]fileScan, len(im.files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range im.files {
		g.Go(func() error {
			s := fileScan{candidates: make(map[string]record)}
			seen := make(map[string]struct{})
			err := im.scan(ctx, path, func(rec record) {
				if _, dup := seen[rec.Code]; dup {
					return
				}
				seen[rec.Code] = struct{}{}
				for j, f := range filters {
					if j != i && f.TestString(rec.Code) {
						s.candidates[rec.Code] = rec
						return
					}
				}
				s.unique = append(s.unique, rec)
			}, func() { s.invalid++ })
			if err != nil {
				return err
			}
			scans[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	masks := make(map[string]uint)
	first := make(map[string]record)
	res := &result{}
	for i, s := range scans {
		res.Records = append(res.Records, s.unique...)
		res.Invalid += s.invalid
		for code, rec := range s.candidates {
			masks[code] |= 1 << uint(i)
			if _, ok := first[code]; !ok {
				first[code] = rec
			}
		}
	}
	for code, mask := range masks {
		if bits.OnesCount(mask) >= 2 {
			res.Conflicts = append(res.Conflicts, code)
			continue
		}
		// Bloom false positive: the code is unique after all.
		res.Records = append(res.Records, first[code])
	}
	return res, nil
}

// scan streams path and calls fn for every valid record and bad for every
// malformed line. bad may be nil.
func (im *importer) scan(ctx context.Context, path string, fn func(record), bad func()) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	var lines int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines++
		if lines%progressEvery == 0 {
			im.lg.Debug("Scan progress", zap.String("file", path), zap.Int("lines", lines))
		}
		rec, ok, err := parseLine(scanner.Text(), im.defaultAmount)
		if err != nil {
			if bad != nil {
				bad()
				im.lg.Debug("Skipping line", zap.String("file", path), zap.Int("line", lines), zap.Error(err))
			}
			continue
		}
		if ok {
			fn(rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

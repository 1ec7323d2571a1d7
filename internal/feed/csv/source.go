// Package csv reads composite price/demand records from delimited feed files.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"priceimporter/internal/job"
	"priceimporter/internal/record"
)

// columns is the target column order of a composite record.
var columns = []string{"region", "period", "settlement_time", "rpr", "total_demand"}

// defaultHeaderMap maps the upstream feed's header names onto target columns.
// Headers not present here fall back to lowercase-with-underscores.
var defaultHeaderMap = map[string]string{
	"REGION":         "region",
	"PERIODTYPE":     "period",
	"SETTLEMENTDATE": "settlement_time",
	"RRP":            "rpr",
	"TOTALDEMAND":    "total_demand",
}

// Options controls feed parsing.
type Options struct {
	// HasHeader indicates the first row names the columns. Without a header
	// the file must carry the target columns in their canonical order.
	HasHeader bool

	// Comma is the field delimiter (default ',').
	Comma rune

	// TrimSpace strips surrounding whitespace from every field.
	TrimSpace bool

	// LazyQuotes relaxes quote handling for feeds with stray quotes.
	LazyQuotes bool

	// HeaderMap overrides entries of the default feed header mapping.
	HeaderMap map[string]string

	// Encoding names the file's character encoding (e.g. "windows-1252").
	// Empty means UTF-8.
	Encoding string
}

// DefaultOptions are the settings for the standard upstream feed.
func DefaultOptions() Options {
	return Options{HasHeader: true, Comma: ',', TrimSpace: true}
}

// Source is a pull-based record stream over one feed file.
type Source struct {
	cr   *csv.Reader
	opts Options

	line       int
	headerDone bool
	colIx      []int
}

// NewSource wraps r. It fails only when the configured encoding is unknown;
// malformed content surfaces from Next, per record.
func NewSource(r io.Reader, opts Options) (*Source, error) {
	if opts.Comma == 0 {
		opts.Comma = ','
	}

	if opts.Encoding != "" {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, fmt.Errorf("feed encoding %q: %w", opts.Encoding, err)
		}
		r = enc.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	cr.Comma = opts.Comma
	cr.ReuseRecord = true
	cr.LazyQuotes = opts.LazyQuotes
	cr.FieldsPerRecord = -1

	return &Source{cr: cr, opts: opts}, nil
}

// FileFactory returns a factory that opens the feed file from the start.
// Restarts reopen through the same factory and skip to the checkpoint.
func FileFactory(path string, opts Options) job.SourceFactory {
	return func(ctx context.Context) (job.RecordSource, func() error, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open feed: %w", err)
		}
		src, err := NewSource(f, opts)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return src, f.Close, nil
	}
}

func (s *Source) read() ([]string, error) {
	s.line++
	return s.cr.Read()
}

func (s *Source) mapHeader() error {
	s.colIx = make([]int, len(columns))
	for i := range s.colIx {
		s.colIx[i] = -1
	}

	if !s.opts.HasHeader {
		for i := range columns {
			s.colIx[i] = i
		}
		return nil
	}

	hdr, err := s.read()
	if err != nil {
		return fmt.Errorf("read feed header: %w", err)
	}

	srcToIdx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if mapped, ok := s.opts.HeaderMap[h]; ok {
			h = mapped
		} else if mapped, ok := defaultHeaderMap[h]; ok {
			h = mapped
		} else {
			h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		}
		srcToIdx[h] = i
	}
	for t, target := range columns {
		if si, ok := srcToIdx[target]; ok {
			s.colIx[t] = si
		}
	}

	for t, target := range columns {
		if s.colIx[t] < 0 {
			return fmt.Errorf("feed header is missing column %q", target)
		}
	}
	return nil
}

// Next returns the next composite record. It returns io.EOF at end of file; a
// consumed row that cannot be parsed comes back with a *record.ValidationError
// so the caller can apply its skip policy.
func (s *Source) Next(ctx context.Context) (record.Composite, error) {
	if err := ctx.Err(); err != nil {
		return record.Composite{}, err
	}

	if !s.headerDone {
		if err := s.mapHeader(); err != nil {
			return record.Composite{}, err
		}
		s.headerDone = true
	}

	rec, err := s.read()
	if err == io.EOF {
		return record.Composite{}, io.EOF
	}
	if err != nil {
		if _, ok := err.(*csv.ParseError); ok {
			return record.Composite{}, &record.ValidationError{
				Field:  "line",
				Reason: fmt.Sprintf("line %d: %v", s.line, err),
			}
		}
		return record.Composite{}, fmt.Errorf("feed read: %w", err)
	}

	return s.parse(rec)
}

func (s *Source) parse(rec []string) (record.Composite, error) {
	fields := make([]string, len(columns))
	for t := range columns {
		si := s.colIx[t]
		if si < 0 || si >= len(rec) {
			return record.Composite{}, s.invalid(columns[t], "missing field")
		}
		v := rec[si]
		if s.opts.TrimSpace {
			v = strings.TrimSpace(v)
		}
		fields[t] = v
	}

	ts, err := record.ParseSettlementTime(fields[2])
	if err != nil {
		return record.Composite{}, s.invalid("settlement_time", err.Error())
	}
	rpr, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return record.Composite{}, s.invalid("rpr", fmt.Sprintf("not a number: %q", fields[3]))
	}
	demand, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return record.Composite{}, s.invalid("total_demand", fmt.Sprintf("not a number: %q", fields[4]))
	}

	return record.Composite{
		Region:      fields[0],
		Period:      fields[1],
		DateTime:    record.DateTimeOf(ts),
		RPR:         rpr,
		TotalDemand: demand,
	}, nil
}

func (s *Source) invalid(field, reason string) error {
	return &record.ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("line %d: %s", s.line, reason),
	}
}

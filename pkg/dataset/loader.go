package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL matches the dashboard's table cache lifetime.
const DefaultTTL = 5 * time.Minute

var ErrTableNotFound = errors.New("table not found")

// Filter restricts a table to rows whose DateColumn lies within [Since, Until]. A zero
// bound is open. Filters on columns the table does not have are ignored.
type Filter struct {
	DateColumn string
	Since      time.Time
	Until      time.Time
}

func (f Filter) cacheKey() string {
	return f.DateColumn + "|" + f.Since.Format(time.RFC3339) + "|" + f.Until.Format(time.RFC3339)
}

type cacheEntry struct {
	ds        *Dataset
	expiresAt time.Time
}

// Loader reads exported warehouse tables (<dir>/<table>.csv or .xlsx) and caches them.
type Loader struct {
	dir string
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type LoaderOption func(*Loader)

func WithTTL(ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		l.ttl = ttl
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.now = now
	}
}

func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:     dir,
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the filtered table, from cache while it is fresh. Concurrent loads of the
// same table share one read.
func (l *Loader) Load(ctx context.Context, table string, f Filter) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := table + "#" + f.cacheKey()

	l.mu.Lock()
	if e, ok := l.entries[k]; ok && l.now().Before(e.expiresAt) {
		l.mu.Unlock()
		log.Debug().Str("table", table).Msg("dataset cache hit")
		return e.ds, nil
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do(k, func() (interface{}, error) {
		ds, err := l.read(table)
		if err != nil {
			return nil, err
		}
		ds, err = ApplyFilter(ds, f)
		if err != nil {
			return nil, errors.Wrapf(err, "filtering table %s", table)
		}
		l.mu.Lock()
		l.entries[k] = cacheEntry{ds: ds, expiresAt: l.now().Add(l.ttl)}
		l.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

// Invalidate drops every cached table.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = map[string]cacheEntry{}
}

func (l *Loader) read(table string) (*Dataset, error) {
	if table == "" || strings.ContainsAny(table, `/\`) || strings.Contains(table, "..") {
		return nil, errors.Errorf("invalid table name %q", table)
	}
	start := time.Now()
	for _, ext := range []string{".csv", ".xlsx"} {
		path := filepath.Join(l.dir, table+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var ds *Dataset
		var err error
		if ext == ".csv" {
			ds, err = ReadCSVFile(path)
		} else {
			ds, err = ReadXLSXFile(path)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		log.Debug().
			Str("table", table).
			Str("path", path).
			Int("rows", ds.NumRows()).
			Dur("elapsed", time.Since(start)).
			Msg("loaded dataset")
		return ds, nil
	}
	return nil, errors.Wrapf(ErrTableNotFound, "%s in %s", table, l.dir)
}

// ApplyFilter applies the date window of f to ds.
func ApplyFilter(ds *Dataset, f Filter) (*Dataset, error) {
	if f.DateColumn == "" || !ds.HasColumn(f.DateColumn) {
		return ds, nil
	}
	if f.Since.IsZero() && f.Until.IsZero() {
		return ds, nil
	}
	c, _ := ds.Column(f.DateColumn)
	if c.Type != TypeTemporal {
		return nil, errors.Errorf("column %q is %s, not temporal", f.DateColumn, c.Type)
	}
	return ds.Filter(func(row int) bool {
		t, ok := c.Values[row].(time.Time)
		if !ok {
			return false
		}
		if !f.Since.IsZero() && t.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && t.After(f.Until) {
			return false
		}
		return true
	}), nil
}

func ReadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadCSV(f)
}

// ReadCSV parses a headered CSV stream, inferring one type per column.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parsing csv")
	}
	return fromStringRows(records)
}

func ReadXLSXFile(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %s", sheets[0])
	}
	return fromStringRows(rows)
}

func fromStringRows(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return New()
	}
	header := records[0]
	body := records[1:]
	cols := make([]Column, len(header))
	for i, name := range header {
		raw := make([]string, len(body))
		for j, rec := range body {
			if i < len(rec) {
				raw[j] = rec[i]
			}
		}
		cols[i] = InferColumn(strings.TrimSpace(name), raw)
	}
	return New(cols...)
}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01",
	"02/01/2006",
}

// InferColumn types raw cell strings as numeric, bool, temporal or text, in that order
// of preference. Empty cells are missing values.
func InferColumn(name string, raw []string) Column {
	values := make([]any, len(raw))
	nonEmpty := 0
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return Column{Name: name, Type: TypeText, Values: values}
	}

	if parsed, ok := parseAll(raw, func(s string) (any, bool) {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}); ok {
		return Column{Name: name, Type: TypeNumeric, Values: parsed}
	}
	if parsed, ok := parseAll(raw, func(s string) (any, bool) {
		switch strings.ToLower(s) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	}); ok {
		return Column{Name: name, Type: TypeBool, Values: parsed}
	}
	for _, layout := range timeLayouts {
		layout := layout
		if parsed, ok := parseAll(raw, func(s string) (any, bool) {
			t, err := time.Parse(layout, s)
			return t, err == nil
		}); ok {
			return Column{Name: name, Type: TypeTemporal, Values: parsed}
		}
	}

	for i, s := range raw {
		if strings.TrimSpace(s) != "" {
			values[i] = s
		}
	}
	return Column{Name: name, Type: TypeText, Values: values}
}

func parseAll(raw []string, parse func(string) (any, bool)) ([]any, bool) {
	ret := make([]any, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		v, ok := parse(s)
		if !ok {
			return nil, false
		}
		ret[i] = v
	}
	return ret, true
}

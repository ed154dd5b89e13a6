// Package pages is the catalog of dashboard pages: which table each page shows, how it is
// date-filtered and the description handed to the assistant.
package pages

import (
	"context"
	_ "embed"
	"io"
	"os"
	"sort"
	"time"

	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed pages.yaml
var defaultCatalog []byte

var ErrUnknownPage = errors.New("unknown page")

const dateLayout = "2006-01-02"

type Page struct {
	Key         string `yaml:"key"`
	Title       string `yaml:"title"`
	Table       string `yaml:"table"`
	DateColumn  string `yaml:"date_column,omitempty"`
	Description string `yaml:"description"`
	// RequireColumn drops rows where this column is missing.
	RequireColumn string `yaml:"require_column,omitempty"`
}

type Catalog struct {
	Business string `yaml:"business"`
	Since    string `yaml:"since,omitempty"`
	Until    string `yaml:"until,omitempty"`
	Pages    []Page `yaml:"pages"`

	since, until time.Time
	byKey        map[string]int
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening page catalog")
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading page catalog")
	}
	return Parse(b)
}

func Parse(b []byte) (*Catalog, error) {
	c := &Catalog{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "parsing page catalog")
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) init() error {
	var err error
	if c.Since != "" {
		if c.since, err = time.Parse(dateLayout, c.Since); err != nil {
			return errors.Wrap(err, "catalog since")
		}
	}
	if c.Until != "" {
		if c.until, err = time.Parse(dateLayout, c.Until); err != nil {
			return errors.Wrap(err, "catalog until")
		}
	}
	c.byKey = make(map[string]int, len(c.Pages))
	for i, p := range c.Pages {
		if p.Key == "" || p.Table == "" {
			return errors.Errorf("page %d needs a key and a table", i)
		}
		if _, ok := c.byKey[p.Key]; ok {
			return errors.Errorf("duplicate page %q", p.Key)
		}
		c.byKey[p.Key] = i
	}
	return nil
}

// SetWindow overrides the catalog date window. Empty strings keep the current bound.
func (c *Catalog) SetWindow(since, until string) error {
	if since != "" {
		t, err := time.Parse(dateLayout, since)
		if err != nil {
			return errors.Wrap(err, "since")
		}
		c.Since, c.since = since, t
	}
	if until != "" {
		t, err := time.Parse(dateLayout, until)
		if err != nil {
			return errors.Wrap(err, "until")
		}
		c.Until, c.until = until, t
	}
	return nil
}

func (c *Catalog) Get(key string) (Page, error) {
	i, ok := c.byKey[key]
	if !ok {
		return Page{}, errors.Wrapf(ErrUnknownPage, "%q", key)
	}
	return c.Pages[i], nil
}

func (c *Catalog) Keys() []string {
	ret := make([]string, 0, len(c.Pages))
	for _, p := range c.Pages {
		ret = append(ret, p.Key)
	}
	sort.Strings(ret)
	return ret
}

// Filter is the loader filter for p. Until is inclusive of the whole day.
func (c *Catalog) Filter(p Page) dataset.Filter {
	if p.DateColumn == "" {
		return dataset.Filter{}
	}
	f := dataset.Filter{DateColumn: p.DateColumn, Since: c.since}
	if !c.until.IsZero() {
		f.Until = c.until.Add(24*time.Hour - time.Nanosecond)
	}
	return f
}

// Load reads the page's table through l and applies the page's row requirements.
func (c *Catalog) Load(ctx context.Context, l *dataset.Loader, key string) (Page, *dataset.Dataset, error) {
	p, err := c.Get(key)
	if err != nil {
		return Page{}, nil, err
	}
	ds, err := l.Load(ctx, p.Table, c.Filter(p))
	if err != nil {
		return Page{}, nil, errors.Wrapf(err, "loading page %s", key)
	}
	if p.RequireColumn != "" {
		col, ok := ds.Column(p.RequireColumn)
		if !ok {
			return Page{}, nil, errors.Errorf("page %s: table %s has no column %q", key, p.Table, p.RequireColumn)
		}
		ds = ds.Filter(func(row int) bool {
			return col.Values[row] != nil
		})
	}
	return p, ds, nil
}

// Package collector runs one poll cycle over a set of descriptors.
//
// Descriptors reading a path are grouped by endpoint so every distinct
// endpoint is fetched exactly once per cycle. Derived descriptors are then
// computed from the raw values collected in the same cycle.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/jpalmerr/nasbridge/internal/catalog"
	"github.com/jpalmerr/nasbridge/internal/format"
	"github.com/jpalmerr/nasbridge/internal/jsonpath"
	"github.com/jpalmerr/nasbridge/internal/nasapi"
)

const defaultMaxConcurrency = 4

// Reading is one entity's value for a cycle. Value nil means no data.
type Reading struct {
	Raw   any    `json:"raw"`
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Null reports whether the reading carries no value.
func (r Reading) Null() bool {
	return r.Value == nil
}

// Result maps entity keys to readings. It is rebuilt in full every cycle.
type Result map[string]Reading

// Nulls counts readings without a value.
func (r Result) Nulls() int {
	n := 0
	for _, v := range r {
		if v.Null() {
			n++
		}
	}
	return n
}

// Merge copies other into r, overwriting existing keys.
func (r Result) Merge(other Result) {
	for k, v := range other {
		r[k] = v
	}
}

// Option configures a [Collector].
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFormatter replaces the default formatter.
func WithFormatter(f format.Formatter) Option {
	return func(c *Collector) {
		c.formatter = f
	}
}

// WithMaxConcurrency bounds concurrent endpoint fetches. Values below 1
// are ignored.
func WithMaxConcurrency(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// Collector fetches and formats descriptor values.
type Collector struct {
	api            catalog.Fetcher
	formatter      format.Formatter
	maxConcurrency int
	logger         *slog.Logger
}

// New creates a [Collector] reading from api.
func New(api catalog.Fetcher, opts ...Option) *Collector {
	c := &Collector{
		api:            api,
		maxConcurrency: defaultMaxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.formatter.Logger == nil {
		c.formatter.Logger = c.logger
	}
	return c
}

// group is the set of path descriptors sharing one endpoint.
type group struct {
	endpoint    string
	descriptors []catalog.Descriptor
	response    nasapi.Response
}

// Update fetches every endpoint referenced by ds once and returns a reading
// for every sensor in ds. Buttons are ignored. A failed or empty response
// yields null readings for all descriptors of that endpoint.
func (c *Collector) Update(ctx context.Context, ds []catalog.Descriptor) Result {
	return c.UpdateFrom(ctx, c.api, ds)
}

// UpdateFrom is [Collector.Update] reading through api, typically a
// [catalog.Memo] already used for discovery in the same cycle.
func (c *Collector) UpdateFrom(ctx context.Context, api catalog.Fetcher, ds []catalog.Descriptor) Result {
	groups := partition(ds)
	c.fetchAll(ctx, api, groups)

	result := make(Result, len(ds))
	for _, g := range groups {
		if g.response.Doc.Empty() {
			c.logger.Warn("no data for endpoint",
				"endpoint", g.endpoint,
				"descriptors", len(g.descriptors),
				"error", g.response.Err,
			)
			for _, d := range g.descriptors {
				result[d.Key] = Reading{Unit: d.Unit}
			}
			continue
		}
		for _, d := range g.descriptors {
			result[d.Key] = c.extract(g.response.Doc, d)
		}
	}

	// derived values read raw values from the first pass
	for _, d := range ds {
		if d.Kind != catalog.Sensor || d.Source.Kind == catalog.DirectPath {
			continue
		}
		result[d.Key] = c.derive(result, d)
	}

	return result
}

// partition groups path descriptors by endpoint in first-seen order.
func partition(ds []catalog.Descriptor) []*group {
	var groups []*group
	byEndpoint := make(map[string]*group)
	for _, d := range ds {
		if d.Kind != catalog.Sensor || d.Source.Kind != catalog.DirectPath {
			continue
		}
		g, ok := byEndpoint[d.Endpoint]
		if !ok {
			g = &group{endpoint: d.Endpoint}
			byEndpoint[d.Endpoint] = g
			groups = append(groups, g)
		}
		g.descriptors = append(g.descriptors, d)
	}
	return groups
}

// fetchAll fetches every group concurrently, respecting maxConcurrency.
func (c *Collector) fetchAll(ctx context.Context, api catalog.Fetcher, groups []*group) {
	if len(groups) == 0 {
		return
	}

	queue := make(chan *group, len(groups))
	for _, g := range groups {
		queue <- g
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < c.maxConcurrency && i < len(groups); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range queue {
				c.logger.Debug("querying endpoint", "endpoint", g.endpoint, "descriptors", len(g.descriptors))
				g.response = api.Get(ctx, g.endpoint)
			}
		}()
	}
	wg.Wait()
}

// extract evaluates a path descriptor. A panic while extracting or
// formatting yields a null reading.
func (c *Collector) extract(doc nasapi.Document, d catalog.Descriptor) (r Reading) {
	defer func() {
		if p := recover(); p != nil {
			correlationID := uuid.NewString()
			c.logger.Error("extraction panic",
				"key", d.Key,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", p),
				"stack", string(debug.Stack()),
			)
			r = Reading{Unit: d.Unit}
		}
	}()

	v, ok := doc.Get(d.Source.Path)
	if !ok {
		return Reading{Unit: d.Unit}
	}

	raw := jsonpath.Value(v)
	formatted := c.formatter.Format(raw, d.Field())
	return Reading{Raw: raw, Value: formatted.Value, Unit: formatted.Unit}
}

func (c *Collector) derive(result Result, d catalog.Descriptor) Reading {
	switch d.Source.Kind {
	case catalog.DerivedSum:
		var (
			sum   float64
			found bool
		)
		for _, k := range d.Source.Keys {
			r, ok := result[k]
			if !ok || r.Raw == nil {
				continue
			}
			f, err := cast.ToFloat64E(r.Raw)
			if err != nil {
				c.logger.Debug("skipping non-numeric summand", "key", d.Key, "summand", k, "error", err)
				continue
			}
			sum += f
			found = true
		}
		if !found {
			return Reading{Unit: d.Unit}
		}
		var raw any = sum
		if sum == math.Trunc(sum) && math.Abs(sum) < 1<<62 {
			raw = int64(sum)
		}
		formatted := c.formatter.Format(raw, d.Field())
		return Reading{Raw: raw, Value: formatted.Value, Unit: formatted.Unit}

	case catalog.DerivedRateScale:
		src, ok := result[d.Source.SourceKey]
		if !ok || src.Raw == nil {
			return Reading{Unit: d.Unit}
		}
		scaled, ok := format.ScaleRate(src.Raw)
		if !ok {
			return Reading{Unit: d.Unit}
		}
		return Reading{Raw: src.Raw, Value: scaled, Unit: d.Unit}

	default:
		c.logger.Warn("unknown value source", "key", d.Key, "source", d.Source.Kind)
		return Reading{Unit: d.Unit}
	}
}

// internal/geocoder/geocoder.go
//
// Location resolution with a static fallback.
//
// Workflow
// --------
//  1. Build the query "house, street, city, <country>" from the non-empty
//     parts.
//  2. Ask the live resolver (bounded by the configured timeout).  Hits are
//     cached in an LRU and concurrent identical queries share one call.
//  3. On error, timeout, or no result, look the city up in the centroid
//     table and tag the answer fallback-table with a city-level caveat.
//  4. Otherwise report not found.  Not found is a normal answer, not an
//     error; the only error is a missing city.
package geocoder

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/publicpulse/pulse/internal/cache"
	"github.com/publicpulse/pulse/internal/metrics"
	"github.com/publicpulse/pulse/internal/record"
)

// ErrCityRequired is returned when a query carries no city.
var ErrCityRequired = errors.New("geocoder: city is required")

// FallbackCaveat is attached to every fallback-table answer.
const FallbackCaveat = "Точные координаты не найдены, использованы координаты центра города"

// DefaultTimeout bounds live resolution when none is configured.
const DefaultTimeout = 5 * time.Second

// Query is a city with optional street and house.
type Query struct {
	City   string `json:"city"`
	Street string `json:"street,omitempty"`
	House  string `json:"house,omitempty"`
}

// Result is the geocoder's answer.  Location is meaningful only when Found.
type Result struct {
	Found    bool            `json:"found"`
	Location record.Location `json:"location"`
	Caveat   string          `json:"warning,omitempty"`
}

// Resolver performs live geocoding.  ok=false with a nil error means the
// upstream answered but had no match.
type Resolver interface {
	Resolve(ctx context.Context, address string) (loc record.Location, ok bool, err error)
}

// Geocoder combines a live Resolver with the centroid Table.
type Geocoder struct {
	live    Resolver
	table   *Table
	timeout time.Duration
	hits    *cache.LRU[string, record.Location]
	sfg     singleflight.Group
	log     *zap.SugaredLogger
}

// Options tune a Geocoder.  Zero values pick defaults.
type Options struct {
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// New builds a Geocoder.  live may be nil, in which case every query goes
// straight to the table.
func New(live Resolver, table *Table, opts Options, log *zap.SugaredLogger) *Geocoder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if log == nil {
		log = zap.S()
	}
	return &Geocoder{
		live:    live,
		table:   table,
		timeout: opts.Timeout,
		hits:    cache.New[string, record.Location](opts.CacheSize, opts.CacheTTL),
		log:     log,
	}
}

// Table exposes the read-only city table.
func (g *Geocoder) Table() *Table { return g.table }

// Geocode resolves q.  See the file comment for the order of sources.
func (g *Geocoder) Geocode(ctx context.Context, q Query) (Result, error) {
	q.City = strings.TrimSpace(q.City)
	q.Street = strings.TrimSpace(q.Street)
	q.House = strings.TrimSpace(q.House)
	if q.City == "" {
		return Result{}, ErrCityRequired
	}

	address := g.address(q)
	if loc, ok := g.resolveLive(ctx, address); ok {
		if loc.Locality == "" {
			loc.Locality = q.City
		}
		metrics.GeocodeTotal.WithLabelValues(string(record.ProvenanceLive)).Inc()
		return Result{Found: true, Location: loc}, nil
	}

	if c, ok := g.table.Lookup(q.City); ok {
		metrics.GeocodeTotal.WithLabelValues(string(record.ProvenanceTable)).Inc()
		return Result{
			Found: true,
			Location: record.Location{
				Lat:        c.Lat,
				Lng:        c.Lng,
				Address:    address,
				Region:     c.Region,
				Locality:   c.Name,
				Street:     q.Street,
				House:      q.House,
				Provenance: record.ProvenanceTable,
			},
			Caveat: FallbackCaveat,
		}, nil
	}

	metrics.GeocodeTotal.WithLabelValues("not-found").Inc()
	return Result{Found: false}, nil
}

// FromDevice wraps raw device coordinates and, when a table city lies
// within one degree, reports it so callers can prefill region and city.
func (g *Geocoder) FromDevice(lat, lng float64) (record.Location, City, bool) {
	loc := record.Location{Lat: lat, Lng: lng, Provenance: record.ProvenanceDevice}
	c, ok := g.table.Nearest(lat, lng)
	if ok {
		loc.Region = c.Region
		loc.Locality = c.Name
		loc.Address = c.Name + ", " + g.table.Country()
	}
	metrics.GeocodeTotal.WithLabelValues(string(record.ProvenanceDevice)).Inc()
	return loc, c, ok
}

func (g *Geocoder) address(q Query) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{q.House, q.Street, q.City, g.table.Country()} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (g *Geocoder) resolveLive(ctx context.Context, address string) (record.Location, bool) {
	if g.live == nil {
		return record.Location{}, false
	}
	if loc, ok := g.hits.Get(address); ok {
		return loc, true
	}

	v, err, _ := g.sfg.Do(address, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		loc, ok, err := g.live.Resolve(ctx, address)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		loc.Provenance = record.ProvenanceLive
		g.hits.Add(address, loc)
		return &loc, nil
	})
	if err != nil {
		g.log.Warnw("live geocode failed", "address", address, "err", err)
		return record.Location{}, false
	}
	loc, _ := v.(*record.Location)
	if loc == nil {
		return record.Location{}, false
	}
	return *loc, true
}

// internal/geocoder/cities.go
//
// Static region → city table with city-centre coordinates.
//
// Context
// -------
// The table backs two things: the geocoder's fallback when live lookup has
// no answer, and the region/city menus of the chat flow.  It is loaded once
// from YAML at startup and never mutated, so concurrent readers need no
// locking.
//
//	country: Кыргызстан
//	regions:
//	  - name: Чуйская область
//	    cities:
//	      - { name: Токмок, lat: 42.8421, lng: 75.3008, aliases: [Tokmok] }
//
// A city listed under two regions keeps the first region it appears in.
// Aliases (usually the Latin spelling) resolve in Lookup only; menus show
// the primary name.
package geocoder

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// City is one fallback centroid.
type City struct {
	Name    string   `yaml:"name"`
	Region  string   `yaml:"-"`
	Lat     float64  `yaml:"lat"`
	Lng     float64  `yaml:"lng"`
	Aliases []string `yaml:"aliases,omitempty"`
}

type regionDoc struct {
	Name   string `yaml:"name"`
	Cities []City `yaml:"cities"`
}

type tableDoc struct {
	Country string      `yaml:"country"`
	Regions []regionDoc `yaml:"regions"`
}

// Table is the immutable region/city index.
type Table struct {
	country string
	regions []string
	byReg   map[string][]string
	byName  map[string]City
	byAlias map[string]string // lower-cased alias → name
	ordered []City
}

// proximity is the max |Δlat| and |Δlng| for device-coordinate inference.
const proximity = 1.0

// LoadTable reads the YAML table at path.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geocoder: read %s: %w", path, err)
	}
	return ParseTable(raw)
}

// ParseTable decodes a YAML table.
func ParseTable(raw []byte) (*Table, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("geocoder: parse city table: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, errors.New("geocoder: city table has no regions")
	}

	t := &Table{
		country: doc.Country,
		byReg:   make(map[string][]string, len(doc.Regions)),
		byName:  make(map[string]City),
		byAlias: make(map[string]string),
	}
	if t.country == "" {
		t.country = "Кыргызстан"
	}
	for _, r := range doc.Regions {
		if _, seen := t.byReg[r.Name]; !seen {
			t.regions = append(t.regions, r.Name)
		}
		for _, c := range r.Cities {
			if !contains(t.byReg[r.Name], c.Name) {
				t.byReg[r.Name] = append(t.byReg[r.Name], c.Name)
			}
			if _, dup := t.byName[c.Name]; dup {
				continue
			}
			c.Region = r.Name
			t.byName[c.Name] = c
			for _, a := range c.Aliases {
				if k := strings.ToLower(strings.TrimSpace(a)); k != "" {
					if _, taken := t.byAlias[k]; !taken {
						t.byAlias[k] = c.Name
					}
				}
			}
			t.ordered = append(t.ordered, c)
		}
	}
	return t, nil
}

// Country is the country suffix appended to addresses.
func (t *Table) Country() string { return t.country }

// Lookup finds a city by exact name, then by alias, then by
// case-insensitive name match.
func (t *Table) Lookup(name string) (City, bool) {
	name = strings.TrimSpace(name)
	if c, ok := t.byName[name]; ok {
		return c, true
	}
	if n, ok := t.byAlias[strings.ToLower(name)]; ok {
		return t.byName[n], true
	}
	for _, c := range t.ordered {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return City{}, false
}

// Regions lists region names in file order.
func (t *Table) Regions() []string {
	out := make([]string, len(t.regions))
	copy(out, t.regions)
	return out
}

// HasRegion reports whether region is listed.
func (t *Table) HasRegion(region string) bool {
	_, ok := t.byReg[region]
	return ok
}

// Cities lists the cities of region in file order.
func (t *Table) Cities(region string) []string {
	src := t.byReg[region]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// InRegion reports whether city is listed under region.
func (t *Table) InRegion(region, city string) bool {
	return contains(t.byReg[region], city)
}

// Nearest returns the closest table city whose centre is within one degree
// on both axes.
func (t *Table) Nearest(lat, lng float64) (City, bool) {
	best, found := City{}, false
	bestDist := math.MaxFloat64
	for _, c := range t.ordered {
		dLat, dLng := math.Abs(c.Lat-lat), math.Abs(c.Lng-lng)
		if dLat >= proximity || dLng >= proximity {
			continue
		}
		if d := dLat*dLat + dLng*dLng; d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best, found
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

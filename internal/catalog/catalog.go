// Package catalog holds the fixed list of (service, agency) pairs the
// classifier may choose from.  A Catalog is built once at startup and is
// safe for concurrent reads; nothing mutates it afterwards.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Entry is one routable government service and the agency that owns it.
type Entry struct {
	Service string `json:"service"`
	Agency  string `json:"agency"`
}

// Catalog is an immutable set of entries with verbatim pair lookup.
type Catalog struct {
	entries []Entry
	index   map[Entry]struct{}
}

// ErrEmpty is returned when a catalog source holds no usable entries.
var ErrEmpty = errors.New("catalog: no entries")

// New builds a Catalog from entries.  Entries with a blank service or agency
// are rejected; duplicates collapse.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{index: make(map[Entry]struct{}, len(entries))}
	for i, e := range entries {
		if strings.TrimSpace(e.Service) == "" || strings.TrimSpace(e.Agency) == "" {
			return nil, fmt.Errorf("catalog: entry %d has blank service or agency", i)
		}
		if _, dup := c.index[e]; dup {
			continue
		}
		c.index[e] = struct{}{}
		c.entries = append(c.entries, e)
	}
	if len(c.entries) == 0 {
		return nil, ErrEmpty
	}
	return c, nil
}

// Load reads a JSON array of {"service", "agency"} objects.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(entries)
}

// Contains reports whether (service, agency) is present verbatim.
func (c *Catalog) Contains(service, agency string) bool {
	_, ok := c.index[Entry{Service: service, Agency: agency}]
	return ok
}

// Entries returns a copy of the entries in load order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len reports the number of distinct entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Prompt renders the list the way the classifier prompt expects it:
// one "- service (agency)" line per entry.
func (c *Catalog) Prompt() string {
	var b strings.Builder
	for i, e := range c.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(e.Service)
		b.WriteString(" (")
		b.WriteString(e.Agency)
		b.WriteString(")")
	}
	return b.String()
}

// internal/config/validator.go
//
// Defaults plus a thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `applyDefaults` and then
// `validateStruct` immediately after it unmarshals the merged Koanf tree
// into a `Config` instance.  Any tag mismatch or validation error aborts
// startup, ensuring the binary never runs with partial, malformed, or
// missing configuration.
//
// Tag rules cover the shape.  The transition table is checked by hand
// because its keys and values must be known statuses.
//
// Notes
// -----
//   - Relative file paths are resolved against Paths.Root.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/publicpulse/pulse/internal/record"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// defaults
//

func applyDefaults(c *Config) {
	dur := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}
	str := func(s *string, def string) {
		if *s == "" {
			*s = def
		}
	}
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Paths.Root, *p)
		}
	}

	dur(&c.HTTP.ReadTimeout, 10*time.Second)
	dur(&c.HTTP.WriteTimeout, 30*time.Second)
	dur(&c.HTTP.IdleTimeout, 60*time.Second)
	dur(&c.HTTP.ShutdownTimeout, 15*time.Second)
	abs(&c.HTTP.GeoIPPath)

	str(&c.Log.Level, "info")

	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 15
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	dur(&c.Database.Timeout, 5*time.Second)

	str(&c.Primary.Driver, "firestore")
	str(&c.Primary.Collection, "reports")
	dur(&c.Primary.Timeout, 10*time.Second)

	dur(&c.Storage.Timeout, 20*time.Second)

	str(&c.Classifier.Model, "gpt-4o-mini")
	dur(&c.Classifier.Timeout, 15*time.Second)
	str(&c.Classifier.Catalog, "conf/catalog.json")
	abs(&c.Classifier.Catalog)

	str(&c.Geocoder.Region, "kg")
	str(&c.Geocoder.Language, "ru")
	dur(&c.Geocoder.Timeout, 5*time.Second)
	str(&c.Geocoder.CityTable, "conf/cities.yaml")
	abs(&c.Geocoder.CityTable)

	str(&c.Sync.DeletePropagation, "mirror_only")
	dur(&c.Sync.LockTTL, 30*time.Second)
	dur(&c.Sync.LockTimeout, 10*time.Second)
	dur(&c.Sync.MirrorTimeout, 5*time.Second)

	str(&c.Mail.Driver, "log")
	str(&c.Mail.TLS, "opportunistic")
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	dur(&c.Mail.Timeout, 15*time.Second)

	dur(&c.Bot.Timeout, 10*time.Second)

	str(&c.Flow.Store, "memory")
	dur(&c.Flow.IdleTTL, 30*time.Minute)
	str(&c.Flow.FallbackDir, "reports")
	abs(&c.Flow.FallbackDir)

	str(&c.Intake.PhoneRegion, "KG")
}

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	for from, tos := range c.Sync.Transitions {
		if !record.Status(from).Valid() {
			return fmt.Errorf("config: sync.transitions: unknown status %q", from)
		}
		for _, to := range tos {
			if !record.Status(to).Valid() {
				return fmt.Errorf("config: sync.transitions.%s: unknown status %q", from, to)
			}
		}
	}
	return nil
}

// internal/config/model.go
//
// Typed configuration model for Pulse.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `.env`                         – dotenv values,
//   - `conf/global.yaml`                      – primary static file,
//   - `PULSE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Defaults are applied after unmarshal and before validation; the app fails
// fast if required fields are still missing.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml` tags
//     unless configured otherwise.
//   - Durations are Go duration strings ("5s", "30m").
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
package config

import (
	"fmt"
	"strings"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// GeoIPPath is an optional GeoLite2-Country database for request
	// enrichment.
	GeoIPPath string `koanf:"geoip_path"`
}

// Auth guards the internal endpoints.
type Auth struct {
	APIKey    string `koanf:"api_key"    validate:"required,min=16"`
	PushToken string `koanf:"push_token"`
}

// Log controls the zap logger.
type Log struct {
	Level   string `koanf:"level"   validate:"oneof=debug info warn error"`
	Console bool   `koanf:"console"`
}

//
// Stores
//

// Database is the MySQL Mirror.
//
// The DSN template stays in YAML so operators can tweak host, port, or
// flags without touching Vault.  The password is a `vault:` reference and
// replaces the single `%s` verb in the DSN when present.
type Database struct {
	DSN      string        `koanf:"dsn"       validate:"required"`
	Password string        `koanf:"password"`
	MaxOpen  int           `koanf:"max_open"  validate:"gte=0"`
	MaxIdle  int           `koanf:"max_idle"  validate:"gte=0"`
	Timeout  time.Duration `koanf:"timeout"`
	Migrate  bool          `koanf:"migrate"`
}

// Primary is the document store of record.
type Primary struct {
	Driver          string        `koanf:"driver"           validate:"oneof=firestore memory"`
	ProjectID       string        `koanf:"project_id"       validate:"required_if=Driver firestore"`
	Collection      string        `koanf:"collection"`
	CredentialsFile string        `koanf:"credentials_file"`
	Timeout         time.Duration `koanf:"timeout"`
}

// Storage is the photo bucket.  An empty Bucket disables uploads.
type Storage struct {
	Bucket          string        `koanf:"bucket"`
	CredentialsFile string        `koanf:"credentials_file"`
	BaseURL         string        `koanf:"base_url"`
	Timeout         time.Duration `koanf:"timeout"`
}

// Redis backs the distributed lock and the flow session store.  An empty
// Addr disables both.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

//
// Components
//

// Classifier configures the upstream model.
type Classifier struct {
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	Temperature float64       `koanf:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `koanf:"timeout"`
	Catalog     string        `koanf:"catalog"     validate:"required"`
}

// Geocoder configures live lookups and the city table.
type Geocoder struct {
	APIKey    string        `koanf:"api_key"`
	Region    string        `koanf:"region"`
	Language  string        `koanf:"language"`
	Timeout   time.Duration `koanf:"timeout"`
	CityTable string        `koanf:"city_table" validate:"required"`
	CacheSize int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// Sync configures the record synchronizer.
type Sync struct {
	DeletePropagation string              `koanf:"delete_propagation" validate:"oneof=mirror_only both"`
	Transitions       map[string][]string `koanf:"transitions"`
	LockTTL           time.Duration       `koanf:"lock_ttl"`
	LockTimeout       time.Duration       `koanf:"lock_timeout"`
	MirrorTimeout     time.Duration       `koanf:"mirror_timeout"`
}

// PubSub carries change events and, optionally, the email queue.
type PubSub struct {
	ProjectID          string `koanf:"project_id"`
	CredentialsFile    string `koanf:"credentials_file"`
	EventsSubscription string `koanf:"events_subscription"`
	EmailTopic         string `koanf:"email_topic"`
}

// Mail selects the email driver.
type Mail struct {
	Driver   string        `koanf:"driver"   validate:"oneof=log smtp pubsub"`
	Host     string        `koanf:"host"     validate:"required_if=Driver smtp"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"     validate:"required_if=Driver smtp"`
	TLS      string        `koanf:"tls"      validate:"oneof=mandatory opportunistic none"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Bot is the Telegram channel.  An empty Token disables bot delivery.
type Bot struct {
	Token       string        `koanf:"token"`
	Endpoint    string        `koanf:"endpoint"`
	AdminChatID string        `koanf:"admin_chat_id"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Flow configures the submission collection flow.
type Flow struct {
	Store       string        `koanf:"store"        validate:"oneof=memory redis"`
	IdleTTL     time.Duration `koanf:"idle_ttl"`
	FallbackDir string        `koanf:"fallback_dir"`
}

// Intake bounds the pipeline's own steps.
type Intake struct {
	PhoneRegion string `koanf:"phone_region"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // PULSE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP       HTTP       `koanf:"http"`
	Auth       Auth       `koanf:"auth"`
	Log        Log        `koanf:"log"`
	Database   Database   `koanf:"database"`
	Primary    Primary    `koanf:"primary"`
	Storage    Storage    `koanf:"storage"`
	Redis      Redis      `koanf:"redis"`
	Classifier Classifier `koanf:"classifier"`
	Geocoder   Geocoder   `koanf:"geocoder"`
	Sync       Sync       `koanf:"sync"`
	PubSub     PubSub     `koanf:"pubsub"`
	Mail       Mail       `koanf:"mail"`
	Bot        Bot        `koanf:"bot"`
	Flow       Flow       `koanf:"flow"`
	Intake     Intake     `koanf:"intake"`
	Paths      Paths      `koanf:"-"` // not loaded from config files
}

// DataSource renders the DSN, substituting Password for a `%s` verb.
func (d Database) DataSource() string {
	if d.Password != "" && strings.Count(d.DSN, "%s") == 1 {
		return fmt.Sprintf(d.DSN, d.Password)
	}
	return d.DSN
}

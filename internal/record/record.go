// internal/record/record.go
//
// Canonical complaint record shared by every PublicPulse component.
//
// Context
// -------
// A Record is created by the intake pipeline with status `new`, persisted in
// the Primary Store, and mirrored into the relational copy operators edit.
// Both stores key the Record by the same immutable `ID`.
//
// Classification is always a verbatim catalog pair or the Spam sentinel.
// Location is optional and carries a provenance tag describing where the
// coordinates came from.
package record

import (
	"strings"
	"time"
)

//
// Enumerations
//

// Status is the processing state of a Record.
type Status string

const (
	StatusNew       Status = "new"
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every valid Status in lifecycle order.
var Statuses = []Status{StatusNew, StatusPending, StatusResolved, StatusCancelled}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

// Origin is the front door a Record was first submitted through.
type Origin string

const (
	OriginWeb Origin = "web"
	OriginBot Origin = "bot"
)

// ParseOrigin accepts the canonical tokens plus the legacy
// `website` / `telegram_bot` labels used by older mirror rows.
func ParseOrigin(s string) (Origin, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "web", "website":
		return OriginWeb, true
	case "bot", "telegram_bot", "telegram":
		return OriginBot, true
	}
	return "", false
}

// Category separates complaints from recommendations.
type Category string

const (
	CategoryComplaint      Category = "complaint"
	CategoryRecommendation Category = "recommendation"
)

// Display labels used by the chat flow and stored by legacy clients.
const (
	labelComplaint      = "Жалоба"
	labelRecommendation = "Рекомендации"
)

// ParseCategory accepts English tokens and the Russian display labels.
// An empty string maps to CategoryComplaint.
func ParseCategory(s string) (Category, bool) {
	switch strings.TrimSpace(s) {
	case "", "complaint", labelComplaint:
		return CategoryComplaint, true
	case "recommendation", labelRecommendation:
		return CategoryRecommendation, true
	}
	return "", false
}

// Label returns the Russian display label for c.
func (c Category) Label() string {
	if c == CategoryRecommendation {
		return labelRecommendation
	}
	return labelComplaint
}

// Importance is the urgency reported by the classifier.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// ParseImportance normalises s; ok is false for anything outside the enum.
func ParseImportance(s string) (Importance, bool) {
	switch Importance(strings.ToLower(strings.TrimSpace(s))) {
	case ImportanceLow:
		return ImportanceLow, true
	case ImportanceMedium:
		return ImportanceMedium, true
	case ImportanceHigh:
		return ImportanceHigh, true
	case ImportanceCritical:
		return ImportanceCritical, true
	}
	return "", false
}

// Provenance records where a Location came from.
type Provenance string

const (
	ProvenanceLive   Provenance = "live-geocode"
	ProvenanceTable  Provenance = "fallback-table"
	ProvenanceDevice Provenance = "device-coordinates"
	ProvenanceNone   Provenance = "none"
)

//
// Value objects
//

// Classification is the (service, agency, importance) triple.
type Classification struct {
	Service    string     `json:"service"`
	Agency     string     `json:"agency"`
	Importance Importance `json:"importance"`
}

// SpamLabel is the service and agency name of the sentinel classification.
const SpamLabel = "Spam"

// Spam is the sentinel meaning "no confident catalog match".
var Spam = Classification{Service: SpamLabel, Agency: SpamLabel, Importance: ImportanceLow}

// IsSpam reports whether c is the sentinel.
func (c Classification) IsSpam() bool {
	return c.Service == SpamLabel && c.Agency == SpamLabel
}

// Location is a resolved point plus its normalised address components.
type Location struct {
	Lat        float64    `json:"latitude"`
	Lng        float64    `json:"longitude"`
	Address    string     `json:"address,omitempty"`
	Region     string     `json:"region,omitempty"`
	Locality   string     `json:"locality,omitempty"`
	Street     string     `json:"street,omitempty"`
	House      string     `json:"house,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// Contact holds the submitter's reachability details.  Phone is the free
// form contact string; it may contain an email address on legacy records.
type Contact struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
}

//
// Aggregate
//

// Record is one citizen complaint or recommendation.
type Record struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Text     string   `json:"text"`
	Solution string   `json:"solution,omitempty"`
	PhotoURL string   `json:"photo_url,omitempty"`

	Classification

	Region   string    `json:"region,omitempty"`
	City     string    `json:"city,omitempty"`
	Location *Location `json:"location,omitempty"`

	Contact Contact `json:"contact"`
	UserID  string  `json:"user_id,omitempty"`

	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultLanguage is used when a Record carries no language preference.
const DefaultLanguage = "ru"

// Language returns the contact language or DefaultLanguage.
func (r Record) Language() string {
	if l := strings.TrimSpace(r.Contact.Language); l != "" {
		return l
	}
	return DefaultLanguage
}

// WithDefaults fills zero-valued enum fields the way mirror rows default
// them: complaint, status new, importance medium, origin web.
func (r Record) WithDefaults() Record {
	if r.Category == "" {
		r.Category = CategoryComplaint
	}
	if r.Status == "" {
		r.Status = StatusNew
	}
	if r.Importance == "" {
		r.Importance = ImportanceMedium
	}
	if r.Origin == "" {
		r.Origin = OriginWeb
	}
	return r
}

// Transition is a status change observed by the synchronizer.
type Transition struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool { return t.From != t.To }

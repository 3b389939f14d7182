// internal/record/patch.go
//
// Partial updates and the document key vocabulary.
//
// Context
// -------
// Operator edits and change-event payloads both arrive as partial documents.
// A Patch carries one pointer per editable field; nil means "not carried".
// `Apply` overwrites only non-nil fields, which is the merge rule for every
// write path in the synchronizer.
//
// Payload keys are the Primary Store document keys listed below.  JSON
// `null` is treated the same as an absent key.
package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document keys shared by the Primary Store, change events, and patches.
const (
	KeyID          = "id"
	KeyCategory    = "report_type"
	KeyText        = "report_text"
	KeySolution    = "solution"
	KeyPhotoURL    = "photo_url"
	KeyService     = "service"
	KeyAgency      = "agency"
	KeyImportance  = "importance"
	KeyRegion      = "region"
	KeyCity        = "city"
	KeyLocation    = "location"
	KeyLatitude    = "latitude"
	KeyLongitude   = "longitude"
	KeyAddress     = "address"
	KeyProvenance  = "location_source"
	KeyContactName = "contact_name"
	KeyContactInfo = "contact_info"
	KeyEmail       = "email"
	KeyLanguage    = "language"
	KeyUserID      = "user_id"
	KeyStatus      = "status"
	KeyNotes       = "notes"
	KeyOrigin      = "source"
	KeyCreatedAt   = "created_at"
	KeyUpdatedAt   = "updated_at"
)

// Patch is a partial Record.  The zero value changes nothing.
type Patch struct {
	Category   *Category
	Text       *string
	Solution   *string
	PhotoURL   *string
	Service    *string
	Agency     *string
	Importance *Importance
	Region     *string
	City       *string
	Location   *Location
	Name       *string
	Phone      *string
	Email      *string
	Language   *string
	UserID     *string
	Status     *Status
	Notes      *string
	Origin     *Origin
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
}

// Ptr returns a pointer to v.  Handy for building patches in callers.
func Ptr[T any](v T) *T { return &v }

// Empty reports whether p carries no fields.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply returns r with every non-nil field of p written over it.
func (p Patch) Apply(r Record) Record {
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Text != nil {
		r.Text = *p.Text
	}
	if p.Solution != nil {
		r.Solution = *p.Solution
	}
	if p.PhotoURL != nil {
		r.PhotoURL = *p.PhotoURL
	}
	if p.Service != nil {
		r.Service = *p.Service
	}
	if p.Agency != nil {
		r.Agency = *p.Agency
	}
	if p.Importance != nil {
		r.Importance = *p.Importance
	}
	if p.Region != nil {
		r.Region = *p.Region
	}
	if p.City != nil {
		r.City = *p.City
	}
	if p.Location != nil {
		loc := *p.Location
		r.Location = &loc
	}
	if p.Name != nil {
		r.Contact.Name = *p.Name
	}
	if p.Phone != nil {
		r.Contact.Phone = *p.Phone
	}
	if p.Email != nil {
		r.Contact.Email = *p.Email
	}
	if p.Language != nil {
		r.Contact.Language = *p.Language
	}
	if p.UserID != nil {
		r.UserID = *p.UserID
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	if p.Origin != nil {
		r.Origin = *p.Origin
	}
	if p.CreatedAt != nil {
		r.CreatedAt = *p.CreatedAt
	}
	if p.UpdatedAt != nil {
		r.UpdatedAt = *p.UpdatedAt
	}
	return r
}

// Full returns a Patch carrying every field of r.  It is used to seed a
// store from a complete Record.
func Full(r Record) Patch {
	p := Patch{
		Category:   Ptr(r.Category),
		Text:       Ptr(r.Text),
		Solution:   Ptr(r.Solution),
		PhotoURL:   Ptr(r.PhotoURL),
		Service:    Ptr(r.Service),
		Agency:     Ptr(r.Agency),
		Importance: Ptr(r.Importance),
		Region:     Ptr(r.Region),
		City:       Ptr(r.City),
		Name:       Ptr(r.Contact.Name),
		Phone:      Ptr(r.Contact.Phone),
		Email:      Ptr(r.Contact.Email),
		Language:   Ptr(r.Contact.Language),
		UserID:     Ptr(r.UserID),
		Status:     Ptr(r.Status),
		Notes:      Ptr(r.Notes),
		Origin:     Ptr(r.Origin),
		CreatedAt:  Ptr(r.CreatedAt),
		UpdatedAt:  Ptr(r.UpdatedAt),
	}
	if r.Location != nil {
		p.Location = Ptr(*r.Location)
	}
	return p
}

// Fields renders p as a document-key map.  Only carried fields appear.
func (p Patch) Fields() map[string]any {
	m := make(map[string]any, 20)
	put := func(k string, ok bool, v any) {
		if ok {
			m[k] = v
		}
	}
	put(KeyCategory, p.Category != nil, deref(p.Category).Label())
	put(KeyText, p.Text != nil, deref(p.Text))
	put(KeySolution, p.Solution != nil, deref(p.Solution))
	put(KeyPhotoURL, p.PhotoURL != nil, deref(p.PhotoURL))
	put(KeyService, p.Service != nil, deref(p.Service))
	put(KeyAgency, p.Agency != nil, deref(p.Agency))
	put(KeyImportance, p.Importance != nil, string(deref(p.Importance)))
	put(KeyRegion, p.Region != nil, deref(p.Region))
	put(KeyCity, p.City != nil, deref(p.City))
	if p.Location != nil {
		m[KeyLocation] = map[string]any{
			KeyLatitude:  p.Location.Lat,
			KeyLongitude: p.Location.Lng,
			KeyAddress:   p.Location.Address,
			"region":     p.Location.Region,
			"locality":   p.Location.Locality,
			"street":     p.Location.Street,
			"house":      p.Location.House,
			"provenance": string(p.Location.Provenance),
		}
	}
	put(KeyContactName, p.Name != nil, deref(p.Name))
	put(KeyContactInfo, p.Phone != nil, deref(p.Phone))
	put(KeyEmail, p.Email != nil, deref(p.Email))
	put(KeyLanguage, p.Language != nil, deref(p.Language))
	put(KeyUserID, p.UserID != nil, deref(p.UserID))
	put(KeyStatus, p.Status != nil, string(deref(p.Status)))
	put(KeyNotes, p.Notes != nil, deref(p.Notes))
	put(KeyOrigin, p.Origin != nil, string(deref(p.Origin)))
	put(KeyCreatedAt, p.CreatedAt != nil, deref(p.CreatedAt))
	put(KeyUpdatedAt, p.UpdatedAt != nil, deref(p.UpdatedAt))
	return m
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

//
// Payload decoding
//

// FieldError reports a payload key holding a value of the wrong shape.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
}

// DecodePatch converts a document payload into a Patch.  Unknown keys are
// ignored.  Enum values outside their set and mistyped values are errors.
func DecodePatch(doc map[string]any) (Patch, error) {
	var p Patch
	if len(doc) == 0 {
		return p, nil
	}

	var err error
	str := func(k string) *string {
		if err != nil {
			return nil
		}
		v, ok := doc[k]
		if !ok || v == nil {
			return nil
		}
		switch t := v.(type) {
		case string:
			return &t
		case float64:
			s := strconv.FormatFloat(t, 'f', -1, 64)
			return &s
		case int64:
			s := strconv.FormatInt(t, 10)
			return &s
		case int:
			s := strconv.Itoa(t)
			return &s
		}
		err = &FieldError{Key: k, Reason: "expected string"}
		return nil
	}

	p.Text = str(KeyText)
	p.Solution = str(KeySolution)
	p.PhotoURL = str(KeyPhotoURL)
	p.Service = str(KeyService)
	p.Agency = str(KeyAgency)
	p.Region = str(KeyRegion)
	p.City = str(KeyCity)
	p.Name = str(KeyContactName)
	p.Phone = str(KeyContactInfo)
	p.Email = str(KeyEmail)
	p.Language = str(KeyLanguage)
	p.UserID = str(KeyUserID)
	p.Notes = str(KeyNotes)

	if s := str(KeyCategory); s != nil {
		c, ok := ParseCategory(*s)
		if !ok {
			return p, &FieldError{Key: KeyCategory, Reason: "unknown category " + strconv.Quote(*s)}
		}
		p.Category = &c
	}
	if s := str(KeyImportance); s != nil && *s != "" {
		i, ok := ParseImportance(*s)
		if !ok {
			return p, &FieldError{Key: KeyImportance, Reason: "unknown importance " + strconv.Quote(*s)}
		}
		p.Importance = &i
	}
	if s := str(KeyStatus); s != nil && *s != "" {
		st := Status(strings.ToLower(strings.TrimSpace(*s)))
		if !st.Valid() {
			return p, &FieldError{Key: KeyStatus, Reason: "unknown status " + strconv.Quote(*s)}
		}
		p.Status = &st
	}
	if s := str(KeyOrigin); s != nil && *s != "" {
		o, ok := ParseOrigin(*s)
		if !ok {
			return p, &FieldError{Key: KeyOrigin, Reason: "unknown origin " + strconv.Quote(*s)}
		}
		p.Origin = &o
	}
	if err != nil {
		return p, err
	}

	if p.CreatedAt, err = timeField(doc, KeyCreatedAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = timeField(doc, KeyUpdatedAt); err != nil {
		return p, err
	}
	if p.Location, err = locationField(doc); err != nil {
		return p, err
	}
	return p, nil
}

// StatusOf extracts only the status of a payload.  A missing or invalid
// status yields "".
func StatusOf(doc map[string]any) Status {
	s, _ := doc[KeyStatus].(string)
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return ""
	}
	return st
}

func timeField(doc map[string]any, k string) (*time.Time, error) {
	v, ok := doc[k]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case time.Time:
		return &t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return &ts, nil
			}
		}
		return nil, &FieldError{Key: k, Reason: "unparseable time " + strconv.Quote(t)}
	}
	return nil, &FieldError{Key: k, Reason: "expected time string"}
}

func locationField(doc map[string]any) (*Location, error) {
	if raw, ok := doc[KeyLocation]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, &FieldError{Key: KeyLocation, Reason: "expected object"}
		}
		return locationFrom(m, KeyLocation)
	}
	// Legacy documents carry flat coordinates.
	if _, ok := doc[KeyLatitude]; ok {
		return locationFrom(doc, KeyLatitude)
	}
	return nil, nil
}

func locationFrom(m map[string]any, key string) (*Location, error) {
	lat, okLat := number(m[KeyLatitude])
	lng, okLng := number(m[KeyLongitude])
	if !okLat || !okLng {
		return nil, &FieldError{Key: key, Reason: "latitude and longitude must be numbers"}
	}
	s := func(k string) string { v, _ := m[k].(string); return v }

	prov := Provenance(s("provenance"))
	if prov == "" {
		prov = Provenance(s(KeyProvenance))
	}
	if prov == "" {
		prov = ProvenanceNone
	}
	return &Location{
		Lat:        lat,
		Lng:        lng,
		Address:    s(KeyAddress),
		Region:     s("region"),
		Locality:   s("locality"),
		Street:     s("street"),
		House:      s("house"),
		Provenance: prov,
	}, nil
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

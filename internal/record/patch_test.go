package record

import (
	"errors"
	"testing"
	"time"
)

func TestDecodePatchCarriesOnlyPresentKeys(t *testing.T) {
	p, err := DecodePatch(map[string]any{
		KeyStatus: "Pending",
		KeyNotes:  "crew dispatched",
		KeyText:   nil,
		"extra":   42.0,
	})
	if err != nil {
		t.Fatalf("DecodePatch: %v", err)
	}
	if p.Status == nil || *p.Status != StatusPending {
		t.Fatalf("status = %v, want pending", p.Status)
	}
	if p.Notes == nil || *p.Notes != "crew dispatched" {
		t.Fatalf("notes = %v", p.Notes)
	}
	if p.Text != nil {
		t.Fatalf("null text must stay nil, got %q", *p.Text)
	}
	if p.Service != nil || p.Location != nil || p.UpdatedAt != nil {
		t.Fatalf("absent keys must decode to nil: %+v", p)
	}
}

func TestDecodePatchRejectsUnknownEnums(t *testing.T) {
	cases := []map[string]any{
		{KeyStatus: "archived"},
		{KeyCategory: "question"},
		{KeyImportance: "urgent"},
		{KeyOrigin: "fax"},
		{KeyText: []any{"x"}},
	}
	for _, doc := range cases {
		_, err := DecodePatch(doc)
		var fe *FieldError
		if !errors.As(err, &fe) {
			t.Fatalf("DecodePatch(%v) error = %v, want *FieldError", doc, err)
		}
	}
}

func TestDecodePatchLocationShapes(t *testing.T) {
	p, err := DecodePatch(map[string]any{
		KeyLocation: map[string]any{
			KeyLatitude:  42.8746,
			KeyLongitude: 74.5698,
			KeyAddress:   "Бишкек, Кыргызстан",
			"provenance": string(ProvenanceTable),
		},
	})
	if err != nil {
		t.Fatalf("nested location: %v", err)
	}
	if p.Location == nil || p.Location.Lat != 42.8746 || p.Location.Provenance != ProvenanceTable {
		t.Fatalf("nested location decoded as %+v", p.Location)
	}

	p, err = DecodePatch(map[string]any{KeyLatitude: "40.5283", KeyLongitude: 72.7985})
	if err != nil {
		t.Fatalf("flat location: %v", err)
	}
	if p.Location == nil || p.Location.Lat != 40.5283 || p.Location.Provenance != ProvenanceNone {
		t.Fatalf("flat location decoded as %+v", p.Location)
	}
}

func TestPatchApplyOverwritesNonNilOnly(t *testing.T) {
	created := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	r := Record{
		ID:        "report_1",
		Text:      "streetlights broken",
		Status:    StatusNew,
		Notes:     "old",
		Contact:   Contact{Name: "Айгуль", Email: "a@example.kg"},
		CreatedAt: created,
	}

	got := Patch{Status: Ptr(StatusResolved), Email: Ptr("")}.Apply(r)
	if got.Status != StatusResolved {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Notes != "old" || got.Text != r.Text || got.Contact.Name != "Айгуль" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if got.Contact.Email != "" {
		t.Fatalf("explicit empty email must overwrite, got %q", got.Contact.Email)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed")
	}
}

func TestFullRoundTripsThroughFields(t *testing.T) {
	r := Record{
		ID:             "report_2",
		Category:       CategoryRecommendation,
		Text:           "more benches in the park",
		Classification: Classification{Service: "Парки", Agency: "Мэрия", Importance: ImportanceLow},
		City:           "Ош",
		Location:       &Location{Lat: 40.5283, Lng: 72.7985, Provenance: ProvenanceTable},
		Status:         StatusPending,
		Origin:         OriginBot,
		UserID:         "1001",
	}

	p, err := DecodePatch(Full(r).Fields())
	if err != nil {
		t.Fatalf("DecodePatch(Full): %v", err)
	}
	got := p.Apply(Record{ID: r.ID})
	if got.Category != r.Category || got.Service != r.Service || got.Origin != r.Origin {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Location == nil || got.Location.Provenance != ProvenanceTable {
		t.Fatalf("location lost: %+v", got.Location)
	}
}

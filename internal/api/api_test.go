package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/publicpulse/pulse/internal/flow"
	"github.com/publicpulse/pulse/internal/geocoder"
	"github.com/publicpulse/pulse/internal/intake"
	"github.com/publicpulse/pulse/internal/record"
	"github.com/publicpulse/pulse/internal/syncer"
)

const testKey = "0123456789abcdef-test"

/*──────────────────────────── fakes ────────────────────────────────────────*/

type fakeIntake struct {
	got    intake.Submission
	result intake.Result
	err    error
}

func (f *fakeIntake) Submit(_ context.Context, sub intake.Submission) (intake.Result, error) {
	f.got = sub
	return f.result, f.err
}

type fakeGeocoder struct{}

func (fakeGeocoder) Geocode(_ context.Context, q geocoder.Query) (geocoder.Result, error) {
	switch q.City {
	case "":
		return geocoder.Result{}, geocoder.ErrCityRequired
	case "Бишкек":
		return geocoder.Result{Found: true, Location: record.Location{Lat: 42.8746, Lng: 74.5698, Locality: "Бишкек"}}, nil
	}
	return geocoder.Result{}, nil
}

type fakeSync struct {
	events  []syncer.Event
	changes []syncer.StatusChange
	patches map[string]record.Patch
	pulled  []string
	err     error
}

func (f *fakeSync) missing(id string) error {
	if id == "ghost" {
		return fmt.Errorf("%w: %s", syncer.ErrNotFound, id)
	}
	return f.err
}

func (f *fakeSync) ApplyLocalEdit(_ context.Context, id string, p record.Patch) (syncer.Outcome, error) {
	if f.patches == nil {
		f.patches = map[string]record.Patch{}
	}
	f.patches[id] = p
	if err := f.missing(id); err != nil {
		return syncer.Outcome{}, err
	}
	return syncer.Outcome{Record: record.Record{ID: id}}, nil
}

func (f *fakeSync) ChangeStatus(_ context.Context, c syncer.StatusChange) (syncer.Outcome, error) {
	f.changes = append(f.changes, c)
	if err := f.missing(c.ID); err != nil {
		return syncer.Outcome{}, err
	}
	if !c.Status.Valid() {
		return syncer.Outcome{}, fmt.Errorf("%w: %q", syncer.ErrInvalidStatus, c.Status)
	}
	return syncer.Outcome{Record: record.Record{ID: c.ID, Status: c.Status}, Notified: true}, nil
}

func (f *fakeSync) ApplyEvent(_ context.Context, ev syncer.Event) (syncer.Outcome, error) {
	f.events = append(f.events, ev)
	if err := f.missing(ev.ID); err != nil {
		return syncer.Outcome{}, err
	}
	return syncer.Outcome{Record: record.Record{ID: ev.ID}}, nil
}

func (f *fakeSync) Pull(_ context.Context, id string) (syncer.Outcome, error) {
	f.pulled = append(f.pulled, id)
	if err := f.missing(id); err != nil {
		return syncer.Outcome{}, err
	}
	return syncer.Outcome{Record: record.Record{ID: id}}, nil
}

type fakeFlow struct {
	session string
	user    string
	in      flow.Input
}

func (f *fakeFlow) Handle(_ context.Context, sessionID, userID string, in flow.Input) (flow.Reply, error) {
	f.session, f.user, f.in = sessionID, userID, in
	return flow.Reply{State: flow.StateLocation, Text: "where?"}, nil
}

type fixture struct {
	intake *fakeIntake
	sync   *fakeSync
	flow   *fakeFlow
	h      http.Handler
}

func newFixture() *fixture {
	f := &fixture{intake: &fakeIntake{}, sync: &fakeSync{}, flow: &fakeFlow{}}
	f.h = NewRouter(Deps{
		Intake:   f.intake,
		Geocoder: fakeGeocoder{},
		Sync:     f.sync,
		Flow:     f.flow,
	}, Options{APIKey: testKey, PushToken: "push-secret"}, nil)
	return f
}

func (f *fixture) do(method, target, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

/*──────────────────────────── tests ────────────────────────────────────────*/

func TestHealthzCarriesSecurityHeaders(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", rec.Header())
	}
}

func TestSubmitReport(t *testing.T) {
	f := newFixture()
	f.intake.result = intake.Result{Success: true, Record: record.Record{ID: "report_1"}}

	req := httptest.NewRequest(http.MethodPost, "/api/reports",
		strings.NewReader(`{"report_text":"Яма на дороге возле школы","city":"Бишкек"}`))
	req.Header.Set("Accept-Language", "ky-KG,ru;q=0.8")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if f.intake.got.Language != "ky" || f.intake.got.City != "Бишкек" {
		t.Fatalf("submission = %+v", f.intake.got)
	}
	var res intake.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.Record.ID != "report_1" {
		t.Fatalf("body = %s (%v)", rec.Body, err)
	}
}

func TestSubmitReportErrors(t *testing.T) {
	f := newFixture()

	f.intake.err = &intake.ValidationError{Field: "report_text", Reason: "required"}
	if rec := f.do(http.MethodPost, "/api/reports", `{}`, false); rec.Code != http.StatusBadRequest {
		t.Fatalf("validation: status = %d", rec.Code)
	}

	f.intake.err = nil
	f.intake.result = intake.Result{Success: false, Error: "persistence failed"}
	if rec := f.do(http.MethodPost, "/api/reports", `{"report_text":"x"}`, false); rec.Code != http.StatusInternalServerError {
		t.Fatalf("persist: status = %d", rec.Code)
	}

	if rec := f.do(http.MethodPost, "/api/reports", `{not json`, false); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed: status = %d", rec.Code)
	}
}

func TestGeocode(t *testing.T) {
	f := newFixture()
	cases := []struct {
		query string
		want  int
	}{
		{"city=%D0%91%D0%B8%D1%88%D0%BA%D0%B5%D0%BA&street=Chui", http.StatusOK},
		{"street=Chui", http.StatusBadRequest},
		{"city=Atlantis", http.StatusNotFound},
	}
	for _, c := range cases {
		if rec := f.do(http.MethodGet, "/api/geocode?"+c.query, "", false); rec.Code != c.want {
			t.Fatalf("%s: status = %d, want %d", c.query, rec.Code, c.want)
		}
	}
}

func TestInternalRoutesRequireKey(t *testing.T) {
	f := newFixture()
	for _, target := range []string{"/api/status", "/api/events", "/api/sync", "/api/bot/sessions/1"} {
		if rec := f.do(http.MethodPost, target, `{}`, false); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestChangeStatus(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/status", `{"id":"r1","status":"resolved","notes":"patched"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var got statusResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if !got.Updated || !got.Notified || f.sync.changes[0].Notes != "patched" {
		t.Fatalf("response = %+v, change = %+v", got, f.sync.changes[0])
	}

	cases := map[string]int{
		`{"status":"resolved"}`:           http.StatusBadRequest,
		`{"id":"r1","status":"archived"}`: http.StatusBadRequest,
		`{"id":"ghost","status":"new"}`:   http.StatusNotFound,
	}
	for body, want := range cases {
		if rec := f.do(http.MethodPost, "/api/status", body, true); rec.Code != want {
			t.Fatalf("%s: status = %d, want %d", body, rec.Code, want)
		}
	}
}

func TestEventIngress(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/events", `{"document_id":"r1","data":{"status":"pending"}}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if ev := f.sync.events[0]; ev.ID != "r1" || ev.Action != syncer.ActionUpdate {
		t.Fatalf("event = %+v", ev)
	}

	cases := map[string]int{
		`{"action":"update"}`:                 http.StatusBadRequest,
		`{"document_id":"r1","action":"zap"}`: http.StatusBadRequest,
		`[`:                                   http.StatusBadRequest,
		`{"document_id":"ghost"}`:             http.StatusNotFound,
	}
	for body, want := range cases {
		if rec := f.do(http.MethodPost, "/api/events", body, true); rec.Code != want {
			t.Fatalf("%s: status = %d, want %d", body, rec.Code, want)
		}
	}
}

func TestPushEvent(t *testing.T) {
	f := newFixture()
	data := base64.StdEncoding.EncodeToString([]byte(`{"document_id":"r1","action":"create"}`))
	envelope := `{"message":{"data":"` + data + `","messageId":"42"},"subscription":"projects/p/subscriptions/pulse-sync"}`

	if rec := f.do(http.MethodPost, "/api/events/pubsub?token=wrong", envelope, false); rec.Code != http.StatusForbidden {
		t.Fatalf("bad token: status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/events/pubsub?token=push-secret", envelope, false); rec.Code != http.StatusNoContent {
		t.Fatalf("ok: status = %d", rec.Code)
	}
	if len(f.sync.events) != 1 || f.sync.events[0].Action != syncer.ActionCreate {
		t.Fatalf("events = %+v", f.sync.events)
	}

	if rec := f.do(http.MethodPost, "/api/events/pubsub?token=push-secret", `garbage`, false); rec.Code != http.StatusNoContent {
		t.Fatalf("malformed: status = %d", rec.Code)
	}

	f.sync.err = fmt.Errorf("mirror down")
	if rec := f.do(http.MethodPost, "/api/events/pubsub?token=push-secret", envelope, false); rec.Code != http.StatusInternalServerError {
		t.Fatalf("transient: status = %d", rec.Code)
	}
}

func TestPull(t *testing.T) {
	f := newFixture()
	if rec := f.do(http.MethodPost, "/api/sync", `{"complaint_id":"r9"}`, true); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/sync", `{}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/sync", `{"complaint_id":"ghost"}`, true); rec.Code != http.StatusNotFound {
		t.Fatalf("ghost: status = %d", rec.Code)
	}
	if len(f.sync.pulled) != 2 || f.sync.pulled[0] != "r9" {
		t.Fatalf("pulled = %v", f.sync.pulled)
	}
}

func TestEditComplaint(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPatch, "/api/admin/complaints/r1", `{"status":"pending","notes":"assigned"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	p := f.sync.patches["r1"]
	if p.Status == nil || *p.Status != record.StatusPending || p.Notes == nil || *p.Notes != "assigned" {
		t.Fatalf("patch = %+v", p)
	}

	if rec := f.do(http.MethodPatch, "/api/admin/complaints/r1", `{"report_type":"Опрос"}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad category: status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPatch, "/api/admin/complaints/ghost", `{"notes":"x"}`, true); rec.Code != http.StatusNotFound {
		t.Fatalf("ghost: status = %d", rec.Code)
	}
}

func TestBotInput(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/bot/sessions/chat-77", `{"user_id":"501","text":"Жалоба","language":"ru"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if f.flow.session != "chat-77" || f.flow.user != "501" || f.flow.in.Text != "Жалоба" {
		t.Fatalf("flow saw %+v", f.flow)
	}
	var reply flow.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil || reply.State != flow.StateLocation {
		t.Fatalf("reply = %s", rec.Body)
	}
}

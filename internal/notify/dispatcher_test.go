package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/publicpulse/pulse/internal/message"
	"github.com/publicpulse/pulse/internal/record"
)

type fakeMailer struct {
	sent []message.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m message.Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeBot struct {
	chats []string
	texts []string
	err   error
}

func (f *fakeBot) SendText(_ context.Context, chatID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.chats = append(f.chats, chatID)
	f.texts = append(f.texts, text)
	return nil
}

func webRecord() record.Record {
	return record.Record{
		ID:      "report_20250603_090000_ab12cd34",
		Text:    "На улице Киевской не работают фонари",
		Origin:  record.OriginWeb,
		City:    "Бишкек",
		Contact: record.Contact{Email: "citizen@example.kg"},
	}
}

func TestDispatchEligibility(t *testing.T) {
	cases := []struct {
		name string
		tr   record.Transition
		want bool
	}{
		{"new to pending", record.Transition{From: record.StatusNew, To: record.StatusPending}, true},
		{"pending to resolved", record.Transition{From: record.StatusPending, To: record.StatusResolved}, true},
		{"to cancelled", record.Transition{From: record.StatusNew, To: record.StatusCancelled}, true},
		{"unchanged", record.Transition{From: record.StatusPending, To: record.StatusPending}, false},
		{"back to new", record.Transition{From: record.StatusPending, To: record.StatusNew}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &fakeMailer{}
			d := New(m, nil, Options{}, nil)
			if got := d.Dispatch(context.Background(), webRecord(), tc.tr); got != tc.want {
				t.Fatalf("Dispatch = %v, want %v", got, tc.want)
			}
			if (len(m.sent) == 1) != tc.want {
				t.Fatalf("sent %d emails", len(m.sent))
			}
		})
	}
}

func TestDispatchEmailFromContactString(t *testing.T) {
	m := &fakeMailer{}
	d := New(m, nil, Options{}, nil)
	rec := webRecord()
	rec.Contact = record.Contact{Phone: "Айгуль, тел +996555000111, mail aigul@example.kg"}

	if !d.Dispatch(context.Background(), rec, record.Transition{From: record.StatusNew, To: record.StatusResolved}) {
		t.Fatalf("Dispatch = false")
	}
	if m.sent[0].To[0] != "aigul@example.kg" {
		t.Fatalf("to = %v", m.sent[0].To)
	}
	if m.sent[0].Subject != "Ваше обращение решено - PublicPulse" {
		t.Fatalf("subject = %q", m.sent[0].Subject)
	}
}

func TestDispatchWithoutAddressIsSkipped(t *testing.T) {
	m := &fakeMailer{}
	d := New(m, nil, Options{}, nil)
	rec := webRecord()
	rec.Contact = record.Contact{Phone: "+996555000111"}

	if d.Dispatch(context.Background(), rec, record.Transition{From: record.StatusNew, To: record.StatusPending}) {
		t.Fatalf("Dispatch = true without an address")
	}
	if len(m.sent) != 0 {
		t.Fatalf("email sent without an address")
	}
}

func TestDispatchKyrgyzAndFallbackLanguage(t *testing.T) {
	m := &fakeMailer{}
	d := New(m, nil, Options{}, nil)
	tr := record.Transition{From: record.StatusPending, To: record.StatusCancelled}

	rec := webRecord()
	rec.Contact.Language = "ky"
	d.Dispatch(context.Background(), rec, tr)
	rec.Contact.Language = "de"
	d.Dispatch(context.Background(), rec, tr)

	if m.sent[0].Subject != "Арызыңыз четке кагылды - PublicPulse" {
		t.Fatalf("ky subject = %q", m.sent[0].Subject)
	}
	if m.sent[1].Subject != "Ваше обращение отклонено - PublicPulse" {
		t.Fatalf("fallback subject = %q", m.sent[1].Subject)
	}
}

func TestDispatchBotOrigin(t *testing.T) {
	b := &fakeBot{}
	d := New(&fakeMailer{}, b, Options{}, nil)
	rec := webRecord()
	rec.Origin = record.OriginBot
	rec.UserID = "424242"
	rec.Notes = "Бригада выехала"

	if !d.Dispatch(context.Background(), rec, record.Transition{From: record.StatusNew, To: record.StatusResolved}) {
		t.Fatalf("Dispatch = false")
	}
	if b.chats[0] != "424242" {
		t.Fatalf("chat = %q", b.chats[0])
	}
	for _, want := range []string{"✅ Ваше обращение решено", rec.ID, "Бригада выехала"} {
		if !strings.Contains(b.texts[0], want) {
			t.Fatalf("bot text missing %q:\n%s", want, b.texts[0])
		}
	}
}

func TestDispatchFailureReturnsFalse(t *testing.T) {
	d := New(&fakeMailer{err: errors.New("relay down")}, nil, Options{}, nil)
	if d.Dispatch(context.Background(), webRecord(), record.Transition{From: record.StatusNew, To: record.StatusPending}) {
		t.Fatalf("Dispatch = true on delivery failure")
	}
}

func TestEmailTextIncludesNotes(t *testing.T) {
	rec := webRecord()
	rec.Notes = "Заменены лампы"
	rec.CreatedAt = time.Date(2025, 6, 3, 3, 0, 0, 0, time.UTC)

	_, body, ok := EmailText(rec, record.StatusResolved)
	if !ok {
		t.Fatalf("no template for resolved")
	}
	for _, want := range []string{"Ваше обращение успешно решено", "Статус: Решено", "Примечания", "Заменены лампы", "03.06.2025 09:00"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if _, _, ok := EmailText(rec, record.StatusNew); ok {
		t.Fatalf("template rendered for status new")
	}
}

func TestAnnounceNewNeedsAdminChat(t *testing.T) {
	b := &fakeBot{}
	if New(nil, b, Options{}, nil).AnnounceNew(context.Background(), webRecord()) {
		t.Fatalf("alert sent without admin chat")
	}
	if !New(nil, b, Options{AdminChatID: "1001"}, nil).AnnounceNew(context.Background(), webRecord()) {
		t.Fatalf("alert not sent")
	}
	if b.chats[0] != "1001" || !strings.Contains(b.texts[0], "НОВОЕ ОБРАЩЕНИЕ") {
		t.Fatalf("alert = %q to %q", b.texts[0], b.chats[0])
	}
}

func TestTelegramSendText(t *testing.T) {
	var gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottok/sendMessage") {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotChat, gotText = r.FormValue("chat_id"), r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	tg := NewTelegram("tok", srv.URL+"/bot%s/%s", time.Second)
	if err := tg.SendText(context.Background(), "42", "привет"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if gotChat != "42" || gotText != "привет" {
		t.Fatalf("chat=%q text=%q", gotChat, gotText)
	}
	if err := tg.SendText(context.Background(), "not-a-number", "x"); err == nil {
		t.Fatalf("expected chat id error")
	}
}

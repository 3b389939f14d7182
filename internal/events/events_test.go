package events

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/publicpulse/pulse/internal/syncer"
)

func TestDecodeWebhook(t *testing.T) {
	ev, err := Decode([]byte(`{"document_id":"report_1","data":{"status":"pending"},"old_data":{"status":"new"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.ID != "report_1" || ev.Action != syncer.ActionUpdate || ev.New["status"] != "pending" || ev.Previous["status"] != "new" {
		t.Fatalf("event = %+v", ev)
	}

	cases := []struct {
		body string
		want error
	}{
		{`{"action":"create"}`, syncer.ErrMissingID},
		{`{"document_id":"x","action":"archive"}`, syncer.ErrInvalidAction},
		{`{"document_id":`, ErrMalformed},
	}
	for _, c := range cases {
		if _, err := Decode([]byte(c.body)); !errors.Is(err, c.want) {
			t.Fatalf("Decode(%s) err = %v, want %v", c.body, err, c.want)
		}
	}
}

func TestDecodePush(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte(`{"document_id":"report_7","action":"DELETE"}`))
	body := `{"message":{"data":"` + data + `","messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`

	ev, id, err := DecodePush([]byte(body))
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if ev.ID != "report_7" || ev.Action != syncer.ActionDelete || id != "m-1" {
		t.Fatalf("event = %+v id = %q", ev, id)
	}

	attrsOnly := `{"message":{"attributes":{"document_id":"report_8","action":"update"},"messageId":"m-2"}}`
	if ev, _, err = DecodePush([]byte(attrsOnly)); err != nil || ev.ID != "report_8" {
		t.Fatalf("attributes event = %+v, %v", ev, err)
	}

	for _, bad := range []string{`not json`, `{"message":{}}`, `{"message":{"data":"bm90IGpzb24="}}`} {
		if _, _, err := DecodePush([]byte(bad)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("DecodePush(%s) err = %v, want ErrMalformed", bad, err)
		}
	}
}

type recordingApplier struct {
	mu  sync.Mutex
	got []syncer.Event
	err error
	hit chan struct{}
}

func (r *recordingApplier) ApplyEvent(_ context.Context, ev syncer.Event) (syncer.Outcome, error) {
	r.mu.Lock()
	r.got = append(r.got, ev)
	r.mu.Unlock()
	select {
	case r.hit <- struct{}{}:
	default:
	}
	return syncer.Outcome{}, r.err
}

func TestSubscriberHandleAckPolicy(t *testing.T) {
	ctx := context.Background()
	s := NewSubscriber(nil, &recordingApplier{}, nil)
	if !s.handle(ctx, "m", []byte(`garbage`), nil) {
		t.Fatalf("malformed message must be acked")
	}

	s.apply = &recordingApplier{err: syncer.ErrInvalidPayload}
	if !s.handle(ctx, "m", []byte(`{"document_id":"r"}`), nil) {
		t.Fatalf("invalid event must be acked")
	}

	s.apply = &recordingApplier{err: errors.New("mysql down")}
	if s.handle(ctx, "m", []byte(`{"document_id":"r"}`), nil) {
		t.Fatalf("transient failure must be nacked")
	}
}

func TestSubscriberReceivesFromPubSub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })
	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	client, err := pubsub.NewClient(ctx, "pulse-test", option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("pubsub client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	topic, err := client.CreateTopic(ctx, "report-changes")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	defer topic.Stop()
	sub, err := client.CreateSubscription(ctx, "pulse-sync", pubsub.SubscriptionConfig{Topic: topic})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	if _, err := topic.Publish(ctx, &pubsub.Message{
		Data: []byte(`{"document_id":"report_3","action":"create","data":{"status":"new"}}`),
	}).Get(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}

	app := &recordingApplier{hit: make(chan struct{}, 1)}
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- NewSubscriber(sub, app, nil).Run(runCtx) }()

	select {
	case <-app.hit:
	case <-ctx.Done():
		t.Fatalf("no event received")
	}
	stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	if len(app.got) != 1 || app.got[0].ID != "report_3" || app.got[0].Action != syncer.ActionCreate {
		t.Fatalf("got %+v", app.got)
	}
}

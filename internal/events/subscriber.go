package events

import (
	"context"
	"errors"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/publicpulse/pulse/internal/syncer"
)

// Subscriber pulls change events from a Pub/Sub subscription.
//
// Undecodable messages and events the synchronizer rejects as invalid are
// acked so they do not redeliver forever.  Any other failure nacks the
// message for redelivery.
type Subscriber struct {
	sub   *pubsub.Subscription
	apply Applier
	log   *zap.SugaredLogger
}

// NewSubscriber wraps sub.  MaxOutstandingMessages is left to the caller's
// ReceiveSettings.
func NewSubscriber(sub *pubsub.Subscription, apply Applier, log *zap.SugaredLogger) *Subscriber {
	if log == nil {
		log = zap.S()
	}
	return &Subscriber{sub: sub, apply: apply, log: log}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	s.log.Infow("event subscriber started", "subscription", s.sub.ID())
	err := s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if s.handle(ctx, m.ID, m.Data, m.Attributes) {
			m.Ack()
			return
		}
		m.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handle reports whether the message is finished with.
func (s *Subscriber) handle(ctx context.Context, msgID string, data []byte, attrs map[string]string) bool {
	ev, err := decodeMessage(data, attrs)
	if err != nil {
		s.log.Warnw("event dropped", "message", msgID, "err", err)
		return true
	}
	out, err := s.apply.ApplyEvent(ctx, ev)
	switch {
	case err == nil:
		s.log.Debugw("event applied", "message", msgID, "id", ev.ID, "action", ev.Action, "ignored", out.Ignored)
		return true
	case syncer.IsValidation(err) || errors.Is(err, syncer.ErrNotFound):
		s.log.Warnw("event rejected", "message", msgID, "id", ev.ID, "err", err)
		return true
	default:
		s.log.Errorw("event failed", "message", msgID, "id", ev.ID, "err", err)
		return false
	}
}

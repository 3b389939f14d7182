// internal/events/events.go
//
// Change-event ingress.
//
// Context
// -------
// Primary Store changes reach the synchronizer in three shapes:
//
//   - a plain JSON webhook  {document_id, action, data, old_data};
//   - a Pub/Sub push delivery wrapping the same payload in message.data;
//   - a Pub/Sub pull subscription (Subscriber) for deployments without a
//     public endpoint.
//
// This package only decodes.  Merge, ordering and notification rules live in
// the synchronizer.
//
// Notes
// -----
//   - The action defaults to update.
//   - A push envelope may carry document_id and action as message
//     attributes instead of in the body.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/publicpulse/pulse/internal/syncer"
)

// ErrMalformed is returned for bodies that cannot be decoded at all.
var ErrMalformed = errors.New("events: malformed payload")

// Applier is the synchronizer's event entry point.
type Applier interface {
	ApplyEvent(ctx context.Context, ev syncer.Event) (syncer.Outcome, error)
}

// Payload is the webhook body.
type Payload struct {
	DocumentID string         `json:"document_id"`
	Action     string         `json:"action,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OldData    map[string]any `json:"old_data,omitempty"`
}

// Event converts p, validating the action.
func (p Payload) Event() (syncer.Event, error) {
	id := strings.TrimSpace(p.DocumentID)
	if id == "" {
		return syncer.Event{}, syncer.ErrMissingID
	}
	action, err := syncer.ParseAction(p.Action)
	if err != nil {
		return syncer.Event{}, err
	}
	return syncer.Event{ID: id, Action: action, New: p.Data, Previous: p.OldData}, nil
}

// Decode parses a webhook body.
func Decode(body []byte) (syncer.Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return syncer.Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p.Event()
}

// PushEnvelope is the body Pub/Sub POSTs to a push endpoint.
type PushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		ID         string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodePush unwraps a push envelope.  The returned message id is for logs.
func DecodePush(body []byte) (syncer.Event, string, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return syncer.Event{}, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, err := decodeMessage(env.Message.Data, env.Message.Attributes)
	return ev, env.Message.ID, err
}

// decodeMessage reads a Pub/Sub message body plus attributes.  Attribute
// values fill fields the body leaves empty.
func decodeMessage(data []byte, attrs map[string]string) (syncer.Event, error) {
	var p Payload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return syncer.Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if p.DocumentID == "" {
		p.DocumentID = attrs["document_id"]
	}
	if p.Action == "" {
		p.Action = attrs["action"]
	}
	if p.DocumentID == "" && len(data) == 0 {
		return syncer.Event{}, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	return p.Event()
}

// internal/message/message.go
//
// Outbound email jobs.
//
// Context
//   The notification dispatcher hands finished emails to a Mailer.  Three
//   drivers exist, selected by `notify.email.driver`:
//
//     smtp    direct delivery through wneessen/go-mail
//     pubsub  JSON job published to a Pub/Sub topic for a mail worker
//     log     payload logged and dropped (development)
//
//   Drivers never retry.  The caller bounds each Send with its own timeout
//   and treats any error as a failed notification.
//
// Style
//   Two-space sentence spacing, concise inline notes.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Email is one outbound message.
type Email struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"` // optional alternative part
}

// ErrNoRecipient is returned for an Email without a usable address.
var ErrNoRecipient = errors.New("message: no recipient")

// Validate checks the fields every driver needs.
func (e Email) Validate() error {
	for _, to := range e.To {
		if strings.TrimSpace(to) != "" {
			return nil
		}
	}
	return ErrNoRecipient
}

// Mailer delivers an Email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// Log is the development driver.  It logs the envelope and returns nil so
// callers proceed as if delivery succeeded.
type Log struct {
	log *zap.SugaredLogger
}

// NewLog returns a Log mailer.  A nil logger falls back to zap.S().
func NewLog(log *zap.SugaredLogger) *Log {
	if log == nil {
		log = zap.S()
	}
	return &Log{log: log}
}

// Send implements Mailer.
func (l *Log) Send(_ context.Context, msg Email) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	l.log.Infow("email (log driver)",
		"to", msg.To, "subject", msg.Subject, "text_len", len(msg.Text), "html", msg.HTML != "")
	return nil
}

// internal/notify/dispatcher.go
//
// Notification Dispatcher: tells a submitter that their complaint moved.
//
// Context
// -------
// The synchronizer calls Dispatch once per detected status transition.  The
// channel follows the record's origin:
//
//	origin web → email to Contact.EmailAddress()
//	origin bot → chat message to UserID
//
// Only moves into pending, resolved, or cancelled are announced.  Delivery
// is single-shot: a failure is logged and counted, Dispatch returns false,
// and nothing is retried or rolled back.
//
// Notes
// -----
//   - Each send is bounded by its own timeout so a stuck relay cannot stall
//     the caller beyond that budget.
//   - AnnounceNew is the operator alert for intake; it uses the same bot
//     channel and is equally best effort.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/publicpulse/pulse/internal/message"
	"github.com/publicpulse/pulse/internal/metrics"
	"github.com/publicpulse/pulse/internal/record"
)

// BotSender posts a plain-text chat message.  *Telegram satisfies it.
type BotSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Options tunes the Dispatcher.
type Options struct {
	EmailTimeout time.Duration
	BotTimeout   time.Duration
	// AdminChatID receives AnnounceNew alerts.  Empty disables them.
	AdminChatID string
}

// Dispatcher renders and delivers status notifications.  Either channel
// may be nil; notifications for that channel are then skipped.
type Dispatcher struct {
	mail message.Mailer
	bot  BotSender
	opts Options
	log  *zap.SugaredLogger
}

// New wires a Dispatcher.
func New(mail message.Mailer, bot BotSender, opts Options, log *zap.SugaredLogger) *Dispatcher {
	if opts.EmailTimeout <= 0 {
		opts.EmailTimeout = 15 * time.Second
	}
	if opts.BotTimeout <= 0 {
		opts.BotTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.S()
	}
	return &Dispatcher{mail: mail, bot: bot, opts: opts, log: log}
}

// Notifiable reports whether a move into to is announced.
func Notifiable(to record.Status) bool {
	switch to {
	case record.StatusPending, record.StatusResolved, record.StatusCancelled:
		return true
	}
	return false
}

// Dispatch sends the notification for tr if rec is eligible.  It reports
// whether a message was delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, rec record.Record, tr record.Transition) bool {
	if !tr.Changed() || !Notifiable(tr.To) {
		return false
	}
	// Render with the status we are announcing, not whatever a later write
	// may have stored.
	rec.Status = tr.To

	switch rec.Origin {
	case record.OriginBot:
		return d.viaBot(ctx, rec, tr.To)
	default:
		return d.viaEmail(ctx, rec, tr.To)
	}
}

func (d *Dispatcher) viaEmail(ctx context.Context, rec record.Record, to record.Status) bool {
	const channel = "email"

	addr := rec.Contact.EmailAddress()
	if addr == "" {
		d.log.Infow("no email address, notification skipped", "id", rec.ID, "status", to)
		metrics.NotificationsTotal.WithLabelValues(channel, "no_address").Inc()
		return false
	}
	if d.mail == nil {
		metrics.NotificationsTotal.WithLabelValues(channel, "disabled").Inc()
		return false
	}
	subject, body, ok := EmailText(rec, to)
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.EmailTimeout)
	defer cancel()
	if err := d.mail.Send(ctx, message.Email{To: []string{addr}, Subject: subject, Text: body}); err != nil {
		d.log.Warnw("status email failed", "id", rec.ID, "status", to, "err", err)
		metrics.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
		return false
	}
	d.log.Infow("status email sent", "id", rec.ID, "status", to)
	metrics.NotificationsTotal.WithLabelValues(channel, "sent").Inc()
	return true
}

func (d *Dispatcher) viaBot(ctx context.Context, rec record.Record, to record.Status) bool {
	const channel = "bot"

	if rec.UserID == "" {
		d.log.Infow("no chat user id, notification skipped", "id", rec.ID, "status", to)
		metrics.NotificationsTotal.WithLabelValues(channel, "no_address").Inc()
		return false
	}
	if d.bot == nil {
		metrics.NotificationsTotal.WithLabelValues(channel, "disabled").Inc()
		return false
	}
	text, ok := BotText(rec, to)
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.BotTimeout)
	defer cancel()
	if err := d.bot.SendText(ctx, rec.UserID, text); err != nil {
		d.log.Warnw("status chat message failed", "id", rec.ID, "user", rec.UserID, "err", err)
		metrics.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
		return false
	}
	d.log.Infow("status chat message sent", "id", rec.ID, "status", to)
	metrics.NotificationsTotal.WithLabelValues(channel, "sent").Inc()
	return true
}

// AnnounceNew alerts the operator chat about a new submission.
func (d *Dispatcher) AnnounceNew(ctx context.Context, rec record.Record) bool {
	if d.opts.AdminChatID == "" || d.bot == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.BotTimeout)
	defer cancel()
	if err := d.bot.SendText(ctx, d.opts.AdminChatID, AdminText(rec)); err != nil {
		d.log.Warnw("admin alert failed", "id", rec.ID, "err", err)
		metrics.NotificationsTotal.WithLabelValues("admin", "failed").Inc()
		return false
	}
	metrics.NotificationsTotal.WithLabelValues("admin", "sent").Inc()
	return true
}

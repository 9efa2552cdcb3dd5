package email

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/observability"
	"github.com/tbourn/pollcord/internal/repo"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Dispatcher drains the mail outbox.
type Dispatcher struct {
	DB          *gorm.DB
	Sender      Sender
	BatchSize   int
	MaxAttempts int
	Interval    time.Duration
}

// DrainOnce sends up to BatchSize pending messages and returns how many were
// delivered. A failed send is recorded on the row and does not stop the batch.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	batch := d.BatchSize
	if batch <= 0 {
		batch = 50
	}
	msgs, err := repo.ListPendingMail(ctx, d.DB, batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, m := range msgs {
		err := d.Sender.Send(ctx, Message{To: []string{m.To}, Subject: m.Subject, Text: m.Text, HTML: m.HTML})
		if err != nil {
			observability.Notifications.WithLabelValues("email", "error").Inc()
			log.Warn().Err(err).Str("mail_id", m.ID).Str("event_id", m.EventID).Msg("mail send failed")
			if merr := repo.MarkMailFailed(ctx, d.DB, m.ID, err.Error(), d.maxAttempts()); merr != nil {
				return sent, merr
			}
			continue
		}
		observability.Notifications.WithLabelValues("email", "ok").Inc()
		if err := repo.MarkMailSent(ctx, d.DB, m.ID, time.Now().UTC()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Run drains the outbox every Interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := d.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("mail outbox drain failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (d *Dispatcher) maxAttempts() int {
	if d.MaxAttempts <= 0 {
		return 5
	}
	return d.MaxAttempts
}

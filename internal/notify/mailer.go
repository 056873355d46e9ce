// Package notify is the boundary to the transactional email sender.
package notify

import (
	"context"
	"log/slog"
	"time"
)

type Mail struct {
	From    string
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LogMailer only logs. It stands in for a real provider in development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(_ context.Context, mail Mail) error {
	m.Logger.Info("mail", "to", mail.To, "subject", mail.Subject)
	return nil
}

// SendAsync fires the mail on its own goroutine. A failure is logged and
// never reaches the caller.
func SendAsync(mailer Mailer, logger *slog.Logger, mail Mail) {
	if mailer == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := mailer.Send(ctx, mail); err != nil {
			logger.Warn("failed to send mail", "to", mail.To, "subject", mail.Subject, "err", err)
		}
	}()
}

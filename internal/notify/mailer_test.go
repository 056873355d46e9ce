package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type chanMailer struct {
	sent chan Mail
	err  error
}

func (m *chanMailer) Send(_ context.Context, mail Mail) error {
	m.sent <- mail
	return m.err
}

func TestSendAsyncDeliversAndSwallowsErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := &chanMailer{sent: make(chan Mail, 1), err: errors.New("smtp down")}

	SendAsync(m, logger, Mail{To: "bob", Subject: "hi"})

	select {
	case got := <-m.sent:
		if got.To != "bob" {
			t.Fatalf("unexpected recipient %q", got.To)
		}
	case <-time.After(time.Second):
		t.Fatalf("mail was not sent")
	}
}

func TestSendAsyncNilMailer(t *testing.T) {
	SendAsync(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Mail{})
}

func TestLogMailer(t *testing.T) {
	m := &LogMailer{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if err := m.Send(context.Background(), Mail{To: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var ErrInvalidMessage = errors.New("invalid mail message")

type Message struct {
	To      string
	Subject string
	Body    string
}

func (m Message) Validate() error {
	if m.To == "" || m.Subject == "" || m.Body == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender hands a message to whatever delivers it. Implementations may
// return before the message has actually left the process.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("mail (log delivery)")
	return nil
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return f(ctx, msg)
}

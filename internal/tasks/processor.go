package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"contactbook/internal/mail"
)

// Processor dispatches stream entries by their "type" field.
type Processor struct {
	sender mail.Sender
	logger zerolog.Logger
}

func NewProcessor(sender mail.Sender, logger zerolog.Logger) *Processor {
	return &Processor{
		sender: sender,
		logger: logger,
	}
}

// Handle returns an error only for entries worth retrying. Malformed and
// unknown entries are logged and reported as handled so they get acked.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType, _ := msg.Values["type"].(string)

	switch taskType {
	case mail.TaskTypeEmail:
		return p.handleEmail(ctx, msg)
	default:
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleEmail(ctx context.Context, msg redis.XMessage) error {
	email, err := mail.DecodeMessage(msg.Values)
	if err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed email task")
		return nil
	}

	if err := p.sender.Send(ctx, email); err != nil {
		return fmt.Errorf("send email %s: %w", msg.ID, err)
	}

	p.logger.Info().Str("message_id", msg.ID).Str("to", email.To).Str("subject", email.Subject).Msg("email delivered")
	return nil
}

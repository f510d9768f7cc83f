package mail

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const TaskTypeEmail = "email"

// QueueSender appends messages to a Redis stream consumed by cmd/worker.
type QueueSender struct {
	client *redis.Client
	stream string
}

func NewQueueSender(client *redis.Client, stream string) *QueueSender {
	return &QueueSender{client: client, stream: stream}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: EncodeMessage(msg),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

func EncodeMessage(msg Message) map[string]any {
	return map[string]any{
		"type":    TaskTypeEmail,
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	}
}

// DecodeMessage is the inverse of EncodeMessage for stream entry values.
func DecodeMessage(values map[string]any) (Message, error) {
	get := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}
	msg := Message{
		To:      get("to"),
		Subject: get("subject"),
		Body:    get("body"),
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

package mail

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer hands a message to the delivery collaborator. Delivery itself is
// outside this process.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Outbox enqueues outbound mail on a Redis stream consumed by the delivery
// worker. Losing a message after the enqueue is the worker's problem; losing
// it before is the caller's.
type Outbox struct {
	queue  *redis.Client
	stream string
	log    zerolog.Logger
}

func NewOutbox(queue *redis.Client, stream string, log zerolog.Logger) *Outbox {
	return &Outbox{queue: queue, stream: stream, log: log}
}

func (o *Outbox) Send(ctx context.Context, msg Message) error {
	id, err := o.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: o.stream,
		Values: map[string]any{
			"from":    msg.From,
			"to":      msg.To,
			"subject": msg.Subject,
			"text":    msg.Text,
			"html":    msg.HTML,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}

	o.log.Debug().Str("stream", o.stream).Str("entry_id", id).Str("to", msg.To).Msg("mail enqueued")
	return nil
}

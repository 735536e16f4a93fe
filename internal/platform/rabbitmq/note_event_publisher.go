package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"studynotes/internal/model"
)

// NoteEventPublisher pushes note-changed events onto the re-index queue.
// Publishing is fire-and-forget from the caller's point of view: the CRUD
// write path must never fail because the broker is down.
type NoteEventPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewNoteEventPublisher(conn *amqp.Connection, queueName string) *NoteEventPublisher {
	return &NoteEventPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *NoteEventPublisher) Publish(ctx context.Context, event model.NoteChangedEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal note event failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish note event failed: %w", err)
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
)

// Publisher sends domain events to a durable RabbitMQ queue. A connection
// is dialled per publish; event volume is a handful per request at most.
// A nil or disabled Publisher only logs the event.
type Publisher struct {
	url   string
	queue string
	on    bool
}

// NewPublisher builds a publisher from broker settings.
func NewPublisher(cfg config.BrokerConfig) *Publisher {
	return &Publisher{url: cfg.URL, queue: cfg.Queue, on: cfg.Enabled}
}

// Publish sends ev. Errors are logged and returned so that callers can
// ignore them without interrupting the request.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || !p.on {
		log.Printf("events: %s %s (broker disabled)", ev.Type, ev.ID)
		return nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

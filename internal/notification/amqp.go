package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyPrefix = "ledger."
	publishTimeout   = 3 * time.Second
)

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes notifications as JSON to a RabbitMQ topic exchange,
// routed by "ledger.<kind>".
type AMQPPublisher struct {
	mu       sync.Mutex
	channel  publishChannel
	exchange string
	now      func() time.Time
}

// NewAMQPPublisher opens a channel on conn and declares the exchange.
func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return newPublisher(ch, exchange), nil
}

func newPublisher(ch publishChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{
		channel:  ch,
		exchange: exchange,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send publishes message as a persistent JSON event. Publishing is bounded by
// a short timeout when ctx carries no deadline.
func (p *AMQPPublisher) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(message.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now(),
		Type:         message.Kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", message.Kind, err)
	}
	return nil
}

// Close releases the channel.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.Close()
}

// RoutingKey returns the topic routing key for a notification kind.
func RoutingKey(kind string) string {
	return routingKeyPrefix + kind
}

package infra

import (
	"fmt"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NewRabbitMQConnection dials the broker after checking the URL scheme.
func NewRabbitMQConnection(rawURL string) (*amqp.Connection, error) {
	clean := strings.TrimSpace(rawURL)
	if clean == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	u, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("parse rabbitmq url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return nil, fmt.Errorf("rabbitmq url must use amqp:// or amqps://")
	}

	conn, err := amqp.Dial(clean)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

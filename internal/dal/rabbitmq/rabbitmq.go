package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"

	"github.com/platonv/delayq/internal/service/models/message"
)

// Client represents a RabbitMQ client.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

// Channel returns the underlying AMQP channel.
func (r *Client) Channel() *amqp.Channel {
	return r.channel
}

// Connection returns the underlying AMQP connection.
func (r *Client) Connection() *amqp.Connection {
	return r.conn
}

// Close closes the channel and connection for graceful shutdown.
func (r *Client) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}

	return nil
}

// NewClient connects to the broker at url and opens a channel.
func NewClient(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	slog.Info("RabbitMQ connected")

	return &Client{
		conn:    conn,
		channel: channel,
	}, nil
}

// MustNewClient creates a new RabbitMQ client.
func MustNewClient(url string) *Client {
	client, err := NewClient(url)
	if err != nil {
		panic(err)
	}

	return client
}

// DeclareExchangeConfig describes an exchange to declare.
type DeclareExchangeConfig struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Args       amqp.Table
}

// DeclareExchange declares an exchange with the given configuration.
func (r *Client) DeclareExchange(cfg DeclareExchangeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.ExchangeDeclare(
		cfg.Name,
		cfg.Kind,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Internal,
		cfg.NoWait,
		cfg.Args,
	)
}

// Publish sends a publishing to the exchange. The channel is not safe for concurrent use.
func (r *Client) Publish(exchange, routingKey string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.Publish(exchange, routingKey, false, false, msg)
}

// publisher is the part of the client used by Publisher.
type publisher interface {
	DeclareExchange(cfg DeclareExchangeConfig) error
	Publish(exchange, routingKey string, msg amqp.Publishing) error
}

// Publisher mirrors dispatched messages to a topic exchange.
type Publisher struct {
	client           publisher
	exchange         string
	routingKeyPrefix string
}

// NewPublisher declares the exchange and returns a publisher bound to it.
func NewPublisher(client publisher, exchange, routingKeyPrefix string) (*Publisher, error) {
	err := client.DeclareExchange(DeclareExchangeConfig{
		Name:    exchange,
		Kind:    amqp.ExchangeTopic,
		Durable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		client:           client,
		exchange:         exchange,
		routingKeyPrefix: routingKeyPrefix,
	}, nil
}

// Name identifies the publisher as a delivery sink.
func (p *Publisher) Name() string {
	return "rabbitmq"
}

// Publish sends msg with routing key <prefix><kind>.
func (p *Publisher) Publish(ctx context.Context, msg message.Message) error {
	_, span := otel.Tracer("rabbitmq").Start(ctx, "Publisher.Publish")
	defer span.End()

	err := p.client.Publish(p.exchange, p.RoutingKey(msg.Kind), amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Key,
		Type:         msg.Kind,
		Timestamp:    time.Unix(msg.CreatedAt, 0),
		Headers: amqp.Table{
			"created_at":             msg.CreatedAt,
			"scheduled_at":           msg.ScheduledAt,
			"scheduled_at_initially": msg.ScheduledAtInitially,
		},
		Body: msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message %s: %w", msg.Key, err)
	}

	return nil
}

// RoutingKey returns the routing key used for messages of kind.
func (p *Publisher) RoutingKey(kind string) string {
	return p.routingKeyPrefix + kind
}

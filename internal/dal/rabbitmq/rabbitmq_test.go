package rabbitmq

import (
	"context"
	"errors"
	"testing"

	"github.com/streadway/amqp"

	"github.com/platonv/delayq/internal/service/models/message"
)

type recordingClient struct {
	declared   []DeclareExchangeConfig
	exchange   string
	routingKey string
	published  []amqp.Publishing
	declareErr error
}

func (c *recordingClient) DeclareExchange(cfg DeclareExchangeConfig) error {
	c.declared = append(c.declared, cfg)

	return c.declareErr
}

func (c *recordingClient) Publish(exchange, routingKey string, msg amqp.Publishing) error {
	c.exchange = exchange
	c.routingKey = routingKey
	c.published = append(c.published, msg)

	return nil
}

func TestPublisherDeclaresTopicExchange(t *testing.T) {
	client := &recordingClient{}

	if _, err := NewPublisher(client, "delayq", "delayq."); err != nil {
		t.Fatalf("new publisher failed: %v", err)
	}
	if len(client.declared) != 1 {
		t.Fatalf("expected one declaration, got %d", len(client.declared))
	}
	if cfg := client.declared[0]; cfg.Name != "delayq" || cfg.Kind != amqp.ExchangeTopic || !cfg.Durable {
		t.Fatalf("unexpected exchange declaration %+v", cfg)
	}
}

func TestPublisherFailsWhenExchangeCannotBeDeclared(t *testing.T) {
	client := &recordingClient{declareErr: errors.New("channel closed")}

	if _, err := NewPublisher(client, "delayq", "delayq."); err == nil {
		t.Fatal("expected an error")
	}
}

func TestPublisherPublishesWithKindRoutingKey(t *testing.T) {
	client := &recordingClient{}
	pub, err := NewPublisher(client, "delayq", "delayq.")
	if err != nil {
		t.Fatalf("new publisher failed: %v", err)
	}

	msg := message.New("k1", "invoice", []byte("body"), 1300, 1000)
	if err := pub.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if client.exchange != "delayq" || client.routingKey != "delayq.invoice" {
		t.Fatalf("unexpected destination %s/%s", client.exchange, client.routingKey)
	}
	got := client.published[0]
	if got.MessageId != "k1" || got.Type != "invoice" || string(got.Body) != "body" {
		t.Fatalf("unexpected publishing %+v", got)
	}
	if got.Headers["scheduled_at"] != int64(1300) {
		t.Fatalf("expected scheduled_at header 1300, got %v", got.Headers["scheduled_at"])
	}
}

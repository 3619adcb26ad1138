package httpdelivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/service/models/webhook"
)

// Headers describing the delivered message.
const (
	HeaderKey         = "X-Delayq-Key"
	HeaderKind        = "X-Delayq-Kind"
	HeaderCreatedAt   = "X-Delayq-Created-At"
	HeaderScheduledAt = "X-Delayq-Scheduled-At"
)

// ErrCircuitOpen is returned when the breaker of a webhook rejects the delivery without calling it.
var ErrCircuitOpen = errors.New("webhook circuit breaker is open")

// Client delivers messages to webhooks over HTTP.
type Client struct {
	httpClient       *http.Client
	failureThreshold uint32
	openTimeout      time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// option is a function that configures the Client.
type option func(*Client)

// NewClient creates a new delivery client.
func NewClient(opts ...option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		openTimeout: 30 * time.Second,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithHTTPClient sets the underlying HTTP client.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithHTTPClient(httpClient *http.Client) option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBreaker enables a circuit breaker per webhook that opens after threshold consecutive failures
// and stays open for openTimeout. A zero threshold disables breaking.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithBreaker(threshold uint32, openTimeout time.Duration) option {
	return func(c *Client) {
		c.failureThreshold = threshold
		if openTimeout > 0 {
			c.openTimeout = openTimeout
		}
	}
}

// Deliver posts the message payload to the webhook.
// Any response outside 2xx is a failure.
func (c *Client) Deliver(ctx context.Context, hook webhook.Webhook, msg message.Message) error {
	ctx, span := otel.Tracer("delivery").Start(ctx, "Client.Deliver")
	defer span.End()

	span.SetAttributes(
		attribute.String("delayq.webhook_id", hook.ID),
		attribute.String("delayq.message_key", msg.Key),
	)

	breaker := c.breaker(hook.ID)
	if breaker == nil {
		err := c.post(ctx, hook, msg)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, hook, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		span.SetStatus(codes.Error, ErrCircuitOpen.Error())

		return fmt.Errorf("%w: %s", ErrCircuitOpen, hook.ID)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (c *Client) post(ctx context.Context, hook webhook.Webhook, msg message.Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(msg.Payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(HeaderKey, msg.Key)
	req.Header.Set(HeaderKind, msg.Kind)
	req.Header.Set(HeaderCreatedAt, strconv.FormatInt(msg.CreatedAt, 10))
	req.Header.Set(HeaderScheduledAt, strconv.FormatInt(msg.ScheduledAt, 10))
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook %s: %w", hook.ID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s responded with status %d", hook.ID, resp.StatusCode)
	}

	return nil
}

func (c *Client) breaker(id string) *gobreaker.CircuitBreaker {
	if c.failureThreshold == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[id]
	if !ok {
		threshold := c.failureThreshold
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhook-" + id,
			MaxRequests: 1,
			Timeout:     c.openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
		c.breakers[id] = cb
	}

	return cb
}

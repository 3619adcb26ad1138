package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platonv/delayq/internal/dal/httpdelivery"
	"github.com/platonv/delayq/internal/metrics"
	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/service/models/webhook"
)

const sinkWebhook = "webhook"

type queueService interface {
	Now() int64
	PollBatch(ctx context.Context, now int64, filter message.KindFilter, limit int) ([]message.Message, error)
	Ack(ctx context.Context, ack message.Ack) (int64, error)
}

type webhookService interface {
	GetAll(ctx context.Context) ([]webhook.Webhook, error)
	RecordFailure(ctx context.Context, id string) error
}

type deliverer interface {
	Deliver(ctx context.Context, hook webhook.Webhook, msg message.Message) error
}

type publisher interface {
	Name() string
	Publish(ctx context.Context, msg message.Message) error
}

type recorder interface {
	Delivered(sink, result string)
	Dispatched(batch int, took time.Duration)
}

// Worker drains due messages and forwards them to every registered webhook.
type Worker struct {
	queue           queueService
	webhooks        webhookService
	deliverer       deliverer
	publisher       publisher
	recorder        recorder
	interval        time.Duration
	batchSize       int
	concurrency     int
	deliveryTimeout time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// option is a function that configures the Worker.
type option func(*Worker)

// NewWorker creates a new dispatch worker.
func NewWorker(queue queueService, webhooks webhookService, deliverer deliverer, opts ...option) *Worker {
	w := &Worker{
		queue:           queue,
		webhooks:        webhooks,
		deliverer:       deliverer,
		recorder:        (*metrics.QueueMetrics)(nil),
		interval:        time.Second,
		batchSize:       100,
		concurrency:     8,
		deliveryTimeout: 10 * time.Second,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WithInterval sets the tick interval.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithInterval(d time.Duration) option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize bounds the messages leased per tick. Zero or less leases every due message.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithBatchSize(n int) option {
	return func(w *Worker) {
		w.batchSize = n
	}
}

// WithConcurrency bounds the deliveries running at once for a message.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithConcurrency(n int) option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithDeliveryTimeout bounds a single delivery.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDeliveryTimeout(d time.Duration) option {
	return func(w *Worker) {
		if d > 0 {
			w.deliveryTimeout = d
		}
	}
}

// WithPublisher mirrors every dispatched message to p.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPublisher(p publisher) option {
	return func(w *Worker) {
		w.publisher = p
	}
}

// WithRecorder sets the metrics recorder.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRecorder(r recorder) option {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// Start runs the dispatch loop until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Dispatch worker started",
		"interval", w.interval,
		"batch_size", w.batchSize,
		"concurrency", w.concurrency,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatch worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Dispatch worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// processMessages leases due messages and dispatches them one by one.
func (w *Worker) processMessages(ctx context.Context) {
	ctx, span := otel.Tracer("worker").Start(ctx, "Worker.processMessages")
	defer span.End()

	started := time.Now()

	messages, err := w.queue.PollBatch(ctx, w.queue.Now(), message.AnyKind(), w.batchSize)
	if err != nil {
		if errs.IsLeaseContention(err) {
			slog.Warn("Dispatch poll hit lease contention", "leased", len(messages), "error", err)
		} else {
			slog.Error("Failed to poll due messages", "leased", len(messages), "error", err)
		}
	}

	span.SetAttributes(attribute.Int("delayq.batch", len(messages)))
	if len(messages) == 0 {
		return
	}

	slog.Info("Dispatching messages", "count", len(messages))

	for _, msg := range messages {
		w.dispatch(ctx, msg)
	}

	w.recorder.Dispatched(len(messages), time.Since(started))
}

// dispatch delivers msg to every webhook and acknowledges it afterwards.
// When the registry cannot be read nothing is attempted and the lease is left to expire.
func (w *Worker) dispatch(ctx context.Context, msg message.Message) {
	hooks, err := w.webhooks.GetAll(ctx)
	if err != nil {
		slog.Error("Failed to read webhook registry, message left for redelivery",
			"key", msg.Key,
			"kind", msg.Kind,
			"error", err,
		)

		return
	}

	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for _, hook := range hooks {
		g.Go(func() error {
			w.deliver(ctx, hook, msg)

			return nil
		})
	}
	if w.publisher != nil {
		g.Go(func() error {
			w.publish(ctx, msg)

			return nil
		})
	}
	_ = g.Wait()

	deleted, err := w.queue.Ack(ctx, message.NewAck(msg))
	if err != nil {
		slog.Error("Failed to ack dispatched message",
			"key", msg.Key,
			"kind", msg.Kind,
			"error", err,
		)

		return
	}
	if deleted == 0 {
		slog.Warn("Lease lost before ack, message may be delivered again",
			"key", msg.Key,
			"kind", msg.Kind,
			"fencing_token", msg.ScheduledAt,
		)
	}
}

func (w *Worker) deliver(ctx context.Context, hook webhook.Webhook, msg message.Message) {
	deliveryCtx, cancel := context.WithTimeout(ctx, w.deliveryTimeout)
	defer cancel()

	err := w.deliverer.Deliver(deliveryCtx, hook, msg)
	switch {
	case err == nil:
		w.recorder.Delivered(sinkWebhook, metrics.ResultOK)
	case errors.Is(err, httpdelivery.ErrCircuitOpen):
		w.recorder.Delivered(sinkWebhook, metrics.ResultSkipped)
		slog.Debug("Webhook skipped by open circuit", "webhook_id", hook.ID, "key", msg.Key)
	default:
		w.recorder.Delivered(sinkWebhook, metrics.ResultFailed)
		slog.Warn("Webhook delivery failed",
			"webhook_id", hook.ID,
			"url", hook.URL,
			"key", msg.Key,
			"error", err,
		)

		if err := w.webhooks.RecordFailure(ctx, hook.ID); err != nil {
			slog.Error("Failed to record webhook failure", "webhook_id", hook.ID, "error", err)
		}
	}
}

func (w *Worker) publish(ctx context.Context, msg message.Message) {
	publishCtx, cancel := context.WithTimeout(ctx, w.deliveryTimeout)
	defer cancel()

	if err := w.publisher.Publish(publishCtx, msg); err != nil {
		w.recorder.Delivered(w.publisher.Name(), metrics.ResultFailed)
		slog.Warn("Failed to mirror message", "sink", w.publisher.Name(), "key", msg.Key, "error", err)

		return
	}
	w.recorder.Delivered(w.publisher.Name(), metrics.ResultOK)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/platonv/delayq/internal/config"
	"github.com/platonv/delayq/internal/dal/httpdelivery"
	"github.com/platonv/delayq/internal/dal/postgres"
	"github.com/platonv/delayq/internal/dal/rabbitmq"
	messagerepo "github.com/platonv/delayq/internal/dal/repositories/message"
	webhookrepo "github.com/platonv/delayq/internal/dal/repositories/webhook"
	"github.com/platonv/delayq/internal/dal/sqlite"
	"github.com/platonv/delayq/internal/metrics"
	"github.com/platonv/delayq/internal/otel"
	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/service/services/queuesvc"
	"github.com/platonv/delayq/internal/service/services/webhooksvc"
	httptransport "github.com/platonv/delayq/internal/transport/http"
	"github.com/platonv/delayq/internal/worker/dispatch"
)

// store is the database client shared by the repositories.
type store interface {
	DB() *sqlx.DB
	Placeholder() sq.PlaceholderFormat
	IsUniqueViolation(err error) bool
	Ping(ctx context.Context) error
	Close() error
}

// Services holds the domain services built on top of the configured store.
// The CLI uses them directly; the server wraps them in an App.
type Services struct {
	QueueSvc   *queuesvc.QueueService
	WebhookSvc *webhooksvc.WebhookService
	Metrics    *metrics.QueueMetrics
	store      store
}

// NewServices connects to the store selected by database.driver and builds the services.
func NewServices(ctx context.Context) (*Services, error) {
	st, err := newStore(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.NewQueueMetrics()

	return &Services{
		QueueSvc: queuesvc.MustNewQueueService(
			queuesvc.WithMessageRepository(messagerepo.NewMessageRepository(st)),
			queuesvc.WithLeaseDuration(viper.GetDuration("queue.lease_duration")),
			queuesvc.WithMaxLeaseAttempts(viper.GetInt("queue.max_lease_attempts")),
			queuesvc.WithRecorder(m),
		),
		WebhookSvc: webhooksvc.MustNewWebhookService(
			webhooksvc.WithWebhookRepository(webhookrepo.NewWebhookRepository(st)),
		),
		Metrics: m,
		store:   st,
	}, nil
}

// MustNewServices creates the services or panics.
func MustNewServices(ctx context.Context) *Services {
	s, err := NewServices(ctx)
	if err != nil {
		panic(err)
	}

	return s
}

// Close closes the store.
func (s *Services) Close() error {
	return s.store.Close()
}

func newStore(ctx context.Context) (store, error) {
	switch driver := viper.GetString("database.driver"); driver {
	case config.DriverPostgres:
		return postgres.NewClient(ctx, viper.GetString("postgres.url"), viper.GetInt32("postgres.max_conns"))
	case config.DriverSQLite, "":
		return sqlite.NewClient(sqlite.FileDSN(viper.GetString("sqlite.path")))
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// App represents the application.
type App struct {
	services     *Services
	transport    *httptransport.HTTPTransport
	dispatcher   *dispatch.Worker
	rabbitClient *rabbitmq.Client
	otel         *otel.OtelController
	dispatchDone chan struct{}
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel(otel.Config{
		Enabled:        viper.GetBool("tracing.enabled"),
		JaegerEndpoint: viper.GetString("tracing.jaeger_endpoint"),
		ServiceName:    viper.GetString("tracing.service_name"),
	})

	services := MustNewServices(context.Background())

	transport := httptransport.NewHTTPTransport(
		services.QueueSvc,
		services.WebhookSvc,
		httptransport.WithPinger(services.store),
		httptransport.WithMetricsHandler(services.Metrics.Handler()),
	)
	transport.RegisterRoutes()

	a := &App{
		services:  services,
		transport: transport,
		otel:      otelController,
	}

	if viper.GetBool("dispatch.enabled") {
		a.dispatcher = a.mustNewDispatcher()
	}

	return a
}

// mirror receives every dispatched message besides the webhooks.
type mirror interface {
	Name() string
	Publish(ctx context.Context, msg message.Message) error
}

func (a *App) mustNewDispatcher() *dispatch.Worker {
	deliverer := httpdelivery.NewClient(
		httpdelivery.WithBreaker(
			viper.GetUint32("dispatch.breaker.failure_threshold"),
			viper.GetDuration("dispatch.breaker.open_timeout"),
		),
	)

	var publisher mirror
	if viper.GetBool("rabbitmq.enabled") {
		a.rabbitClient = rabbitmq.MustNewClient(viper.GetString("rabbitmq.url"))

		p, err := rabbitmq.NewPublisher(
			a.rabbitClient,
			viper.GetString("rabbitmq.exchange"),
			viper.GetString("rabbitmq.routing_key_prefix"),
		)
		if err != nil {
			panic(err)
		}
		publisher = p
	}

	return dispatch.NewWorker(
		a.services.QueueSvc,
		a.services.WebhookSvc,
		deliverer,
		dispatch.WithInterval(viper.GetDuration("dispatch.interval")),
		dispatch.WithBatchSize(viper.GetInt("dispatch.batch_size")),
		dispatch.WithConcurrency(viper.GetInt("dispatch.concurrency")),
		dispatch.WithDeliveryTimeout(viper.GetDuration("dispatch.delivery_timeout")),
		dispatch.WithRecorder(a.services.Metrics),
		dispatch.WithPublisher(publisher),
	)
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting HTTP server", "port", viper.GetString("server.http.port"))

		return a.transport.Run()
	})

	if a.dispatcher != nil {
		a.dispatchDone = make(chan struct{})
		g.Go(func() error {
			defer close(a.dispatchDone)
			a.dispatcher.Start(gctx)

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received")

		return a.shutdown()
	})

	err := g.Wait()
	slog.Info("Application shutdown complete")

	return err
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("server.http.shutdown_timeout"))
	defer cancel()

	var errs []error

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		errs = append(errs, err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if a.dispatcher != nil {
		a.dispatcher.Stop()
		select {
		case <-a.dispatchDone:
			slog.Info("Dispatch worker stopped gracefully")
		case <-ctx.Done():
			slog.Error("Dispatch worker did not stop in time")
			errs = append(errs, ctx.Err())
		}
	}

	if a.rabbitClient != nil {
		if err := a.rabbitClient.Close(); err != nil {
			slog.Error("RabbitMQ connection close error", "error", err)
			errs = append(errs, err)
		}
	}

	if err := a.services.Close(); err != nil {
		slog.Error("Database connection close error", "error", err)
		errs = append(errs, err)
	} else {
		slog.Info("Database connection closed gracefully")
	}

	if err := a.otel.Shutdown(ctx); err != nil {
		slog.Error("Tracer provider shutdown error", "error", err)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

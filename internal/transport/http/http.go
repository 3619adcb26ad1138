package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/platonv/delayq/docs"
	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/service/models/webhook"
	"github.com/platonv/delayq/internal/transport/http/ack"
	getmessages "github.com/platonv/delayq/internal/transport/http/get_messages"
	"github.com/platonv/delayq/internal/transport/http/poll"
	"github.com/platonv/delayq/internal/transport/http/respond"
	schedulemessage "github.com/platonv/delayq/internal/transport/http/schedule_message"
	"github.com/platonv/delayq/internal/transport/http/webhooks"
	"github.com/platonv/delayq/pkg/http/middleware/trace"
	"github.com/platonv/delayq/pkg/logger"
)

type queueService interface {
	Now() int64
	List(ctx context.Context) ([]message.Message, error)
	Schedule(ctx context.Context, msg message.Message) (message.Message, error)
	PollBatch(ctx context.Context, now int64, filter message.KindFilter, limit int) ([]message.Message, error)
	Ack(ctx context.Context, ack message.Ack) (int64, error)
}

type webhookService interface {
	Create(ctx context.Context, url string) (webhook.Webhook, error)
	GetAll(ctx context.Context) ([]webhook.Webhook, error)
	Update(ctx context.Context, hook webhook.Webhook) (webhook.Webhook, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type HTTPTransport struct {
	server         *http.Server
	router         *chi.Mux
	queueService   queueService
	webhookService webhookService
	pinger         pinger
	metrics        http.Handler
	pollLimit      int
}

// option is a function that configures the HTTPTransport.
type option func(*HTTPTransport)

// WithPinger sets the store checked by /health.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPinger(p pinger) option {
	return func(h *HTTPTransport) {
		h.pinger = p
	}
}

// WithMetricsHandler exposes handler on /metrics.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMetricsHandler(handler http.Handler) option {
	return func(h *HTTPTransport) {
		h.metrics = handler
	}
}

func NewHTTPTransport(queueService queueService, webhookService webhookService, opts ...option) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	h := &HTTPTransport{
		server:         server,
		router:         router,
		queueService:   queueService,
		webhookService: webhookService,
		pollLimit:      viper.GetInt("queue.poll_limit"),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *HTTPTransport) Run() error {
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler returns the router serving every route.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/get_messages", h.getMessages)
	h.router.Post("/schedule_message", h.scheduleMessage)
	h.router.Get("/poll", h.poll)
	h.router.Get("/poll/{kind}", h.poll)
	h.router.Post("/ack", h.ack)

	h.router.Route("/webhooks", func(r chi.Router) {
		r.Get("/", h.getWebhooks)
		r.Post("/", h.createWebhook)
		r.Put("/{id}", h.updateWebhook)
	})

	h.router.Post("/echo", h.echo)
	h.router.Get("/health", h.health)
	if h.metrics != nil {
		h.router.Method(http.MethodGet, "/metrics", h.metrics)
	}
	h.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

func (h *HTTPTransport) getMessages(w http.ResponseWriter, r *http.Request) {
	getmessages.GetMessages(w, r, h.queueService)
}

func (h *HTTPTransport) scheduleMessage(w http.ResponseWriter, r *http.Request) {
	schedulemessage.ScheduleMessage(w, r, h.queueService)
}

func (h *HTTPTransport) poll(w http.ResponseWriter, r *http.Request) {
	poll.Poll(w, r, h.queueService, h.pollLimit)
}

func (h *HTTPTransport) ack(w http.ResponseWriter, r *http.Request) {
	ack.Ack(w, r, h.queueService)
}

func (h *HTTPTransport) getWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks.GetAll(w, r, h.webhookService)
}

func (h *HTTPTransport) createWebhook(w http.ResponseWriter, r *http.Request) {
	webhooks.Create(w, r, h.webhookService)
}

func (h *HTTPTransport) updateWebhook(w http.ResponseWriter, r *http.Request) {
	webhooks.Update(w, r, h.webhookService)
}

// echo logs the delivered body. Sample webhooks point here.
func (h *HTTPTransport) echo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respond.Error(w, r, errs.BadInput("failed to read body"))

		return
	}

	slog.Info("Echo received",
		"key", r.Header.Get("X-Delayq-Key"),
		"kind", r.Header.Get("X-Delayq-Kind"),
		"body", string(body),
	)
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPTransport) health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			respond.Error(w, r, errs.Transient(err, "store is unreachable"))

			return
		}
	}

	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(trace.NewTraceMiddleware(viper.GetString("tracing.service_name")))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	if rpm := viper.GetInt("server.http.rate_limit.requests_per_minute"); rpm > 0 {
		router.Use(httprate.LimitByIP(rpm, time.Minute))
	}

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:              "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

package webhooksvc

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/platonv/delayq/internal/dal/interfaces/iwebhookrepo"
	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/webhook"
)

// WebhookService manages the webhook registry.
type WebhookService struct {
	webhookRepo iwebhookrepo.IWebhookRepository
	now         func() time.Time
}

// option is a function that configures the WebhookService.
type option func(*WebhookService)

// MustNewWebhookService creates a new WebhookService.
func MustNewWebhookService(opts ...option) *WebhookService {
	s := &WebhookService{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.webhookRepo == nil {
		panic("webhooksvc: webhook repository is required")
	}

	return s
}

// WithWebhookRepository sets the webhook store.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithWebhookRepository(repo iwebhookrepo.IWebhookRepository) option {
	return func(s *WebhookService) {
		s.webhookRepo = repo
	}
}

// WithClock overrides the wall clock.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *WebhookService) {
		s.now = now
	}
}

// Create registers a new webhook for rawURL.
func (s *WebhookService) Create(ctx context.Context, rawURL string) (webhook.Webhook, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "WebhookService.Create")
	defer span.End()

	if err := validateURL(rawURL); err != nil {
		return webhook.Webhook{}, err
	}

	hook := webhook.FromURL(rawURL, s.now().Unix())
	if err := s.webhookRepo.Create(ctx, hook); err != nil {
		return webhook.Webhook{}, err
	}

	slog.Info("Webhook registered", "id", hook.ID, "url", hook.URL)

	return hook, nil
}

// GetAll returns every registered webhook.
func (s *WebhookService) GetAll(ctx context.Context) ([]webhook.Webhook, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "WebhookService.GetAll")
	defer span.End()

	return s.webhookRepo.GetAll(ctx)
}

// Update overwrites url and fails_count of an existing webhook.
func (s *WebhookService) Update(ctx context.Context, hook webhook.Webhook) (webhook.Webhook, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "WebhookService.Update")
	defer span.End()

	if err := validateURL(hook.URL); err != nil {
		return webhook.Webhook{}, err
	}
	if hook.FailsCount < 0 {
		return webhook.Webhook{}, errs.BadInput("fails_count must not be negative")
	}

	hook.UpdatedAt = s.now().Unix()
	updated, err := s.webhookRepo.Update(ctx, hook)
	if err != nil {
		return webhook.Webhook{}, err
	}
	if updated == 0 {
		return webhook.Webhook{}, errs.NotFound(fmt.Sprintf("webhook %q not found", hook.ID))
	}

	hooks, err := s.webhookRepo.GetAll(ctx)
	if err != nil {
		return webhook.Webhook{}, err
	}
	for _, stored := range hooks {
		if stored.ID == hook.ID {
			return stored, nil
		}
	}

	return hook, nil
}

// RecordFailure increments the failure counter of a webhook.
// A webhook removed in the meantime is ignored.
func (s *WebhookService) RecordFailure(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("service").Start(ctx, "WebhookService.RecordFailure")
	defer span.End()

	updated, err := s.webhookRepo.IncrementFails(ctx, id, s.now().Unix())
	if err != nil {
		return err
	}
	if updated == 0 {
		slog.Warn("Failure recorded for unknown webhook", "id", id)
	}

	return nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errs.BadInput(fmt.Sprintf("invalid webhook url %q", rawURL))
	}

	return nil
}

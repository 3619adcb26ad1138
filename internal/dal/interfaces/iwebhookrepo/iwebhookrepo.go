package iwebhookrepo

import (
	"context"

	"github.com/platonv/delayq/internal/service/models/webhook"
)

// IWebhookRepository defines the interface for webhook registry storage.
type IWebhookRepository interface {
	// Create inserts a new webhook
	Create(ctx context.Context, hook webhook.Webhook) error

	// GetAll returns every registered webhook
	GetAll(ctx context.Context) ([]webhook.Webhook, error)

	// Update overwrites url, fails_count and updated_at, returning the number of updated rows
	Update(ctx context.Context, hook webhook.Webhook) (int64, error)

	// IncrementFails atomically increments fails_count
	IncrementFails(ctx context.Context, id string, updatedAt int64) (int64, error)
}

package webhookrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/webhook"
)

const table = "webhooks"

type sqlClient interface {
	DB() *sqlx.DB
	Placeholder() sq.PlaceholderFormat
	IsUniqueViolation(err error) bool
}

// webhookDal represents a webhooks row.
type webhookDal struct {
	ID         string `db:"id"`
	URL        string `db:"url"`
	FailsCount int64  `db:"fails_count"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (d *webhookDal) toModel() webhook.Webhook {
	return webhook.Webhook{
		ID:         d.ID,
		URL:        d.URL,
		FailsCount: d.FailsCount,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// WebhookRepository implements the webhook registry on top of SQL.
type WebhookRepository struct {
	client sqlClient
}

// NewWebhookRepository creates a new webhook repository.
func NewWebhookRepository(client sqlClient) *WebhookRepository {
	return &WebhookRepository{
		client: client,
	}
}

// Create inserts a new webhook.
func (r *WebhookRepository) Create(ctx context.Context, hook webhook.Webhook) error {
	query, args, err := sq.Insert(table).
		Columns("id", "url", "fails_count", "created_at", "updated_at").
		Values(hook.ID, hook.URL, hook.FailsCount, hook.CreatedAt, hook.UpdatedAt).
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.client.DB().ExecContext(ctx, query, args...); err != nil {
		if r.client.IsUniqueViolation(err) {
			return errs.Conflict(fmt.Sprintf("webhook %q already exists", hook.ID), errs.CodeWebhookConflict)
		}

		return errs.Transient(err, "failed to insert webhook")
	}

	return nil
}

// GetAll returns every registered webhook ordered by creation time.
func (r *WebhookRepository) GetAll(ctx context.Context) ([]webhook.Webhook, error) {
	query, args, err := sq.Select("id", "url", "fails_count", "created_at", "updated_at").
		From(table).
		OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var rows []webhookDal
	if err := sqlx.SelectContext(ctx, r.client.DB(), &rows, query, args...); err != nil {
		return nil, errs.Transient(err, "failed to list webhooks")
	}

	hooks := make([]webhook.Webhook, 0, len(rows))
	for i := range rows {
		hooks = append(hooks, rows[i].toModel())
	}

	return hooks, nil
}

// Update overwrites url, fails_count and updated_at of the webhook.
func (r *WebhookRepository) Update(ctx context.Context, hook webhook.Webhook) (int64, error) {
	query, args, err := sq.Update(table).
		Set("url", hook.URL).
		Set("fails_count", hook.FailsCount).
		Set("updated_at", hook.UpdatedAt).
		Where(sq.Eq{"id": hook.ID}).
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update query: %w", err)
	}

	return r.exec(ctx, query, args, "failed to update webhook")
}

// IncrementFails increments fails_count in place so concurrent dispatchers do not lose updates.
func (r *WebhookRepository) IncrementFails(ctx context.Context, id string, updatedAt int64) (int64, error) {
	query, args, err := sq.Update(table).
		Set("fails_count", sq.Expr("fails_count + 1")).
		Set("updated_at", updatedAt).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update query: %w", err)
	}

	return r.exec(ctx, query, args, "failed to increment webhook failures")
}

func (r *WebhookRepository) exec(ctx context.Context, query string, args []any, failure string) (int64, error) {
	res, err := r.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errs.Transient(err, failure)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Transient(err, failure)
	}

	return affected, nil
}

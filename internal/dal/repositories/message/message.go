package messagerepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/message"
)

const table = "delayed_queue"

var columns = []string{
	"pkey",
	"pkind",
	"payload",
	"scheduled_at",
	"scheduled_at_initially",
	"created_at",
}

// sqlClient is the database handle shared by every repository.
type sqlClient interface {
	DB() *sqlx.DB
	Placeholder() sq.PlaceholderFormat
	IsUniqueViolation(err error) bool
}

// messageDal represents a delayed_queue row.
type messageDal struct {
	Key                  string `db:"pkey"`
	Kind                 string `db:"pkind"`
	Payload              []byte `db:"payload"`
	ScheduledAt          int64  `db:"scheduled_at"`
	ScheduledAtInitially int64  `db:"scheduled_at_initially"`
	CreatedAt            int64  `db:"created_at"`
}

// toModel converts messageDal to the service layer model.
func (d *messageDal) toModel() message.Message {
	return message.Message{
		Key:                  d.Key,
		Kind:                 d.Kind,
		Payload:              d.Payload,
		ScheduledAt:          d.ScheduledAt,
		ScheduledAtInitially: d.ScheduledAtInitially,
		CreatedAt:            d.CreatedAt,
	}
}

// MessageRepository implements the message store on top of SQL.
type MessageRepository struct {
	client sqlClient
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(client sqlClient) *MessageRepository {
	return &MessageRepository{
		client: client,
	}
}

// Schedule inserts a new message.
func (r *MessageRepository) Schedule(ctx context.Context, msg message.Message) error {
	payload := msg.Payload
	if payload == nil {
		payload = []byte{}
	}

	query, args, err := sq.Insert(table).
		Columns(columns...).
		Values(
			msg.Key,
			msg.Kind,
			payload,
			msg.ScheduledAt,
			msg.ScheduledAtInitially,
			msg.CreatedAt,
		).
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.client.DB().ExecContext(ctx, query, args...); err != nil {
		if r.client.IsUniqueViolation(err) {
			return errs.Conflict(
				fmt.Sprintf("message %q of kind %q created at %d already exists", msg.Key, msg.Kind, msg.CreatedAt),
				errs.CodeMessageConflict,
			)
		}

		return errs.Transient(err, "failed to insert message")
	}

	return nil
}

// List returns all messages ordered by created_at.
func (r *MessageRepository) List(ctx context.Context) ([]message.Message, error) {
	query, args, err := sq.Select(columns...).
		From(table).
		OrderBy("created_at ASC", "pkey ASC", "pkind ASC").
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var rows []messageDal
	if err := sqlx.SelectContext(ctx, r.client.DB(), &rows, query, args...); err != nil {
		return nil, errs.Transient(err, "failed to list messages")
	}

	messages := make([]message.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].toModel())
	}

	return messages, nil
}

// Count returns the number of stored messages.
func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").
		From(table).
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int64
	if err := sqlx.GetContext(ctx, r.client.DB(), &count, query, args...); err != nil {
		return 0, errs.Transient(err, "failed to count messages")
	}

	return count, nil
}

// FindDue returns the due message with the smallest scheduled_at.
// Rows sharing scheduled_at are ordered by their identity so the choice is stable.
func (r *MessageRepository) FindDue(
	ctx context.Context,
	now int64,
	filter message.KindFilter,
) (*message.Message, error) {
	builder := sq.Select(columns...).
		From(table).
		Where(sq.LtOrEq{"scheduled_at": now})

	if kind, ok := filter.Kind(); ok {
		builder = builder.Where(sq.Eq{"pkind": kind})
	}

	query, args, err := builder.
		OrderBy("scheduled_at ASC", "created_at ASC", "pkey ASC", "pkind ASC").
		Limit(1).
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var row messageDal
	if err := sqlx.GetContext(ctx, r.client.DB(), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, errs.Transient(err, "failed to find due message")
	}

	msg := row.toModel()

	return &msg, nil
}

// TryLease sets scheduled_at to leaseUntil only if the row still carries the observed scheduled_at.
// It reports whether exactly one row was updated.
func (r *MessageRepository) TryLease(
	ctx context.Context,
	id message.Identity,
	observed int64,
	leaseUntil int64,
) (bool, error) {
	query, args, err := sq.Update(table).
		Set("scheduled_at", leaseUntil).
		Where(identityEq(id)).
		Where(sq.Eq{"scheduled_at": observed}).
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := r.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, errs.Transient(err, "failed to lease message")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errs.Transient(err, "failed to read leased rows")
	}

	return affected == 1, nil
}

// DeleteIf deletes the message with the given identity.
// When fence is set the row must also still carry that scheduled_at.
func (r *MessageRepository) DeleteIf(
	ctx context.Context,
	id message.Identity,
	fence *int64,
) (int64, error) {
	builder := sq.Delete(table).
		Where(identityEq(id))

	if fence != nil {
		builder = builder.Where(sq.Eq{"scheduled_at": *fence})
	}

	query, args, err := builder.
		PlaceholderFormat(r.client.Placeholder()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	res, err := r.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errs.Transient(err, "failed to delete message")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Transient(err, "failed to read deleted rows")
	}

	return affected, nil
}

func identityEq(id message.Identity) sq.Eq {
	return sq.Eq{
		"pkey":       id.Key,
		"pkind":      id.Kind,
		"created_at": id.CreatedAt,
	}
}

package imessagerepo

import (
	"context"

	"github.com/platonv/delayq/internal/service/models/message"
)

// IMessageRepository defines the interface for delayed queue storage.
type IMessageRepository interface {
	// Schedule inserts a new message, failing with a conflict error on a duplicate identity
	Schedule(ctx context.Context, msg message.Message) error

	// List returns all messages ordered by creation time
	List(ctx context.Context) ([]message.Message, error)

	// Count returns the number of stored messages
	Count(ctx context.Context) (int64, error)

	// FindDue returns the due message with the smallest scheduled_at, or nil
	FindDue(ctx context.Context, now int64, filter message.KindFilter) (*message.Message, error)

	// TryLease moves scheduled_at to leaseUntil if it still equals observed
	TryLease(ctx context.Context, id message.Identity, observed, leaseUntil int64) (bool, error)

	// DeleteIf deletes the message, optionally fenced on its current scheduled_at
	DeleteIf(ctx context.Context, id message.Identity, fence *int64) (int64, error)
}

package queuesvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platonv/delayq/internal/dal/interfaces/imessagerepo"
	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/message"
)

const (
	// DefaultLeaseDuration is the lease granted by a poll when none is configured.
	DefaultLeaseDuration = 5 * time.Minute
	// DefaultMaxLeaseAttempts bounds the lease races a single poll may lose in a row.
	DefaultMaxLeaseAttempts = 64
)

// recorder receives protocol events. *metrics.QueueMetrics satisfies it.
type recorder interface {
	Scheduled(kind string)
	Leased(kind string)
	LeaseConflict()
	Acked(deleted int64)
}

type noopRecorder struct{}

func (noopRecorder) Scheduled(string) {}
func (noopRecorder) Leased(string) {}
func (noopRecorder) LeaseConflict() {}
func (noopRecorder) Acked(int64) {}

// QueueService implements the lease protocol on top of the message store.
// It holds no lease state of its own: every decision is made by the store's conditional updates,
// so any number of services may poll the same store concurrently.
type QueueService struct {
	messageRepo      imessagerepo.IMessageRepository
	leaseDuration    int64
	maxLeaseAttempts int
	recorder         recorder
	now              func() time.Time
}

// option is a function that configures the QueueService.
type option func(*QueueService)

// MustNewQueueService creates a new QueueService.
func MustNewQueueService(opts ...option) *QueueService {
	s := &QueueService{
		leaseDuration:    int64(DefaultLeaseDuration / time.Second),
		maxLeaseAttempts: DefaultMaxLeaseAttempts,
		recorder:         noopRecorder{},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.messageRepo == nil {
		panic("queuesvc: message repository is required")
	}
	if s.leaseDuration < 1 {
		panic("queuesvc: lease duration must be at least one second")
	}
	if s.maxLeaseAttempts < 1 {
		panic("queuesvc: max lease attempts must be positive")
	}

	return s
}

// WithMessageRepository sets the message store.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMessageRepository(repo imessagerepo.IMessageRepository) option {
	return func(s *QueueService) {
		s.messageRepo = repo
	}
}

// WithLeaseDuration sets how long a poll keeps a message away from other pollers.
// The duration is truncated to whole seconds.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithLeaseDuration(d time.Duration) option {
	return func(s *QueueService) {
		s.leaseDuration = int64(d / time.Second)
	}
}

// WithMaxLeaseAttempts bounds how many lease races a poll may lose in a row.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMaxLeaseAttempts(n int) option {
	return func(s *QueueService) {
		s.maxLeaseAttempts = n
	}
}

// WithRecorder sets the metrics recorder.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRecorder(r recorder) option {
	return func(s *QueueService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the wall clock.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *QueueService) {
		s.now = now
	}
}

// Now returns the current time in epoch seconds.
func (s *QueueService) Now() int64 {
	return s.now().Unix()
}

// LeaseDuration returns the configured lease duration in seconds.
func (s *QueueService) LeaseDuration() int64 {
	return s.leaseDuration
}

// Schedule stores a new message.
// Missing creation and initial schedule times are filled from the clock.
func (s *QueueService) Schedule(ctx context.Context, msg message.Message) (message.Message, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "QueueService.Schedule")
	defer span.End()

	now := s.Now()
	if msg.Key == "" {
		msg.Key = uuid.NewString()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = now
	}
	if msg.ScheduledAt == 0 {
		msg.ScheduledAt = now
	}
	if msg.ScheduledAtInitially == 0 {
		msg.ScheduledAtInitially = msg.ScheduledAt
	}
	if msg.ScheduledAt < msg.ScheduledAtInitially {
		return message.Message{}, errs.BadInput("scheduled_at must not be before scheduled_at_initially")
	}

	if err := s.messageRepo.Schedule(ctx, msg); err != nil {
		return message.Message{}, err
	}
	s.recorder.Scheduled(msg.Kind)

	slog.Debug("Message scheduled",
		"key", msg.Key,
		"kind", msg.Kind,
		"scheduled_at", msg.ScheduledAt,
	)

	return msg, nil
}

// List returns every stored message ordered by creation time.
func (s *QueueService) List(ctx context.Context) ([]message.Message, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "QueueService.List")
	defer span.End()

	return s.messageRepo.List(ctx)
}

// Count returns the number of stored messages.
func (s *QueueService) Count(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "QueueService.Count")
	defer span.End()

	return s.messageRepo.Count(ctx)
}

// Poll leases the earliest due message matching filter.
// It returns nil when no message is due.
func (s *QueueService) Poll(ctx context.Context, now int64, filter message.KindFilter) (*message.Message, error) {
	leased, err := s.PollBatch(ctx, now, filter, 1)
	if len(leased) == 0 {
		return nil, err
	}

	return &leased[0], err
}

// PollBatch leases due messages matching filter in ascending scheduled_at order until none is due
// or limit messages are leased. A limit <= 0 means no limit.
//
// Every returned message carries its new scheduled_at, which is the fencing token for Ack.
// On error the messages leased so far are returned too; their leases expire on their own
// if the caller drops them.
func (s *QueueService) PollBatch(
	ctx context.Context,
	now int64,
	filter message.KindFilter,
	limit int,
) ([]message.Message, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "QueueService.PollBatch")
	defer span.End()

	var leased []message.Message
	lost := 0

	for limit <= 0 || len(leased) < limit {
		if err := ctx.Err(); err != nil {
			return leased, err
		}

		candidate, err := s.messageRepo.FindDue(ctx, now, filter)
		if err != nil {
			return leased, err
		}
		if candidate == nil {
			break
		}

		leaseUntil := s.leaseUntil(candidate.ScheduledAt, now)
		ok, err := s.messageRepo.TryLease(ctx, candidate.Identity(), candidate.ScheduledAt, leaseUntil)
		if err != nil {
			return leased, err
		}

		if !ok {
			// Someone else leased or removed the candidate; the due set shrank, scan again.
			s.recorder.LeaseConflict()
			lost++
			if lost >= s.maxLeaseAttempts {
				return leased, errs.LeaseContention(
					fmt.Sprintf("lost %d lease races in a row for kind %s", lost, filter),
				)
			}

			continue
		}

		lost = 0
		candidate.ScheduledAt = leaseUntil
		leased = append(leased, *candidate)
		s.recorder.Leased(candidate.Kind)

		slog.Debug("Message leased",
			"key", candidate.Key,
			"kind", candidate.Kind,
			"created_at", candidate.CreatedAt,
			"lease_until", leaseUntil,
		)
	}

	span.SetAttributes(
		attribute.String("delayq.kind_filter", filter.String()),
		attribute.Int("delayq.leased", len(leased)),
	)

	return leased, nil
}

// Ack deletes an acknowledged message and returns the number of removed rows.
// Zero rows means the message is gone or its lease was granted to someone else since.
func (s *QueueService) Ack(ctx context.Context, ack message.Ack) (int64, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "QueueService.Ack")
	defer span.End()

	deleted, err := s.messageRepo.DeleteIf(ctx, ack.Identity, ack.FencingToken)
	if err != nil {
		return 0, err
	}
	s.recorder.Acked(deleted)

	if deleted == 0 {
		slog.Debug("Ack matched no message",
			"key", ack.Key,
			"kind", ack.Kind,
			"created_at", ack.CreatedAt,
		)
	}

	return deleted, nil
}

// leaseUntil extends the observed schedule by one lease.
// A message overdue by more than a whole lease is leased from now instead, so the lease
// always ends after now and a batch never picks up a row it already holds.
func (s *QueueService) leaseUntil(observed, now int64) int64 {
	until := observed + s.leaseDuration
	if until <= now {
		until = now + s.leaseDuration
	}

	return until
}

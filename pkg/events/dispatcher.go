package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"libtrack/pkg/clock"
	"libtrack/pkg/queue"
)

// envelope holds exactly one of the two event kinds.
type envelope struct {
	audit        *AuditEvent
	notification *NotificationEvent
}

func (e envelope) kind() string {
	if e.audit != nil {
		return "audit"
	}
	return "notification"
}

// Dispatcher hands events to their sinks after the originating transaction
// has committed. A failed delivery never fails the operation that emitted
// it; the event is parked in a retry queue and redelivered by Flush.
type Dispatcher struct {
	audit        AuditSink
	notification NotificationSink
	queue        *queue.Queue[envelope]
	clock        clock.Clock
	logger       *slog.Logger
	maxRetries   int
	baseDelay    time.Duration
}

type DispatcherConfig struct {
	MaxRetries int
	// BaseDelay is the wait before the first retry; it doubles per attempt.
	BaseDelay time.Duration
}

func NewDispatcher(audit AuditSink, notification NotificationSink, c clock.Clock, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Minute
	}
	return &Dispatcher{
		audit:        audit,
		notification: notification,
		queue:        queue.NewQueue[envelope](),
		clock:        c,
		logger:       logger,
		maxRetries:   cfg.MaxRetries,
		baseDelay:    cfg.BaseDelay,
	}
}

func (d *Dispatcher) Audit(ctx context.Context, e AuditEvent) {
	if e.At.IsZero() {
		e.At = d.clock.Now()
	}
	d.deliverOrQueue(ctx, envelope{audit: &e})
}

func (d *Dispatcher) Notify(ctx context.Context, e NotificationEvent) {
	if e.At.IsZero() {
		e.At = d.clock.Now()
	}
	d.deliverOrQueue(ctx, envelope{notification: &e})
}

// Pending is the number of events waiting for a retry.
func (d *Dispatcher) Pending() int {
	return d.queue.Size()
}

// Flush retries every queued event that is due and reports how many were
// delivered and how many were dropped after their last attempt.
func (d *Dispatcher) Flush(ctx context.Context) (delivered, dropped int) {
	now := d.clock.Now()
	due := d.queue.DrainDue(now)

	for i, item := range due {
		if ctx.Err() != nil {
			for _, rest := range due[i:] {
				d.queue.Enqueue(rest)
			}
			break
		}

		err := d.deliver(ctx, item.Payload)
		if err == nil {
			delivered++
			continue
		}

		item.RetryCount++
		item.LastError = err.Error()
		if item.Exhausted() {
			dropped++
			d.logger.Error("dropping event after retries",
				"kind", item.Payload.kind(), "id", item.ID, "attempts", item.RetryCount, "error", err)
			continue
		}
		item.RetryAt = now.Add(d.backoff(item.RetryCount))
		d.queue.Enqueue(item)
	}

	if delivered > 0 || dropped > 0 {
		next, _ := d.queue.NextRetryAt()
		d.logger.Info("event queue flushed",
			"delivered", delivered, "dropped", dropped, "pending", d.queue.Size(), "next_retry", next)
	}
	return delivered, dropped
}

// Run flushes the queue every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

func (d *Dispatcher) deliverOrQueue(ctx context.Context, e envelope) {
	err := d.deliver(ctx, e)
	if err == nil {
		return
	}

	item := &queue.Item[envelope]{
		ID:         uuid.NewString(),
		Payload:    e,
		RetryAt:    d.clock.Now().Add(d.baseDelay),
		MaxRetries: d.maxRetries,
		LastError:  err.Error(),
	}
	d.queue.Enqueue(item)
	d.logger.Warn("event delivery failed, queued for retry",
		"kind", e.kind(), "id", item.ID, "retry_at", item.RetryAt, "error", err)
}

func (d *Dispatcher) deliver(ctx context.Context, e envelope) error {
	if e.audit != nil {
		return d.audit.RecordAudit(ctx, *e.audit)
	}
	return d.notification.Notify(ctx, *e.notification)
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseDelay
	for i := 1; i < attempt && delay < time.Hour; i++ {
		delay *= 2
	}
	return delay
}

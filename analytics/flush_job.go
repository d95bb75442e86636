package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-appshell/core"
)

const (
	JobIDFlush = "appshell.analytics.flush"

	defaultFlushRetryDelay = 30 * time.Second
)

// ScheduleFlush queues an outbox flush. Requests in the same minute share an
// idempotency key.
func (s *Service) ScheduleFlush(ctx context.Context, batchSize int) error {
	if s.scheduler == nil {
		return core.CapabilityUnsupportedError(core.KindAnalytics, "ScheduleFlush")
	}
	if batchSize <= 0 {
		batchSize = defaultFlushBatchSize
	}
	return s.scheduler.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          JobIDFlush,
		ScriptPath:     JobIDFlush,
		Parameters:     map[string]any{"batch_size": batchSize},
		IdempotencyKey: fmt.Sprintf("%s:%d", JobIDFlush, s.now().UTC().Truncate(time.Minute).Unix()),
		DedupPolicy:    "drop",
	})
}

// FlushJobHandler consumes flush messages from a job queue.
type FlushJobHandler struct {
	Service    *Service
	RetryDelay time.Duration
}

// ProcessNext dequeues one delivery and runs it. Unknown jobs are dead
// lettered; failed flushes are requeued. An empty queue is not an error.
func (h FlushJobHandler) ProcessNext(ctx context.Context, dequeuer core.JobDequeuer) error {
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return err
	}
	return h.Handle(ctx, delivery)
}

func (h FlushJobHandler) Handle(ctx context.Context, delivery core.JobDelivery) error {
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDFlush {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "unknown job"})
	}
	if h.Service == nil {
		return delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Reason: "analytics service is not configured"})
	}
	if _, err := h.Service.FlushBatch(ctx, batchSize(msg.Parameters)); err != nil {
		delay := h.RetryDelay
		if delay <= 0 {
			delay = defaultFlushRetryDelay
		}
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: delay, Reason: err.Error()}); nackErr != nil {
			return nackErr
		}
		return err
	}
	return delivery.Ack(ctx)
}

func batchSize(params map[string]any) int {
	switch value := params["batch_size"].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return defaultFlushBatchSize
	}
}

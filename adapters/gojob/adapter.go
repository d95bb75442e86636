package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-appshell/analytics"
	"github.com/goliatone/go-appshell/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const JobIDAnalyticsFlush = analytics.JobIDFlush

// RetryPolicy bounds requeues so a failing flush cannot loop forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt applies the policy to a nack for the given attempt.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     core.CloneFields(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     core.CloneFields(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// EnqueuerAdapter lets analytics.Service.ScheduleFlush publish to a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

// DeliveryAdapter tracks the attempt number so nacks go through RetryPolicy.
type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempt  int
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy, attempt int) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy, attempt: attempt}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, ToNackOptions(d.policy.NormalizeAttempt(opts, d.attempt)))
}

// ToNackOptions maps normalized nack flags onto a go-job disposition.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	out := queue.NackOptions{Reason: opts.Reason}
	switch {
	case opts.DeadLetter:
		out.Disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		out.Disposition = queue.NackDispositionRetry
		out.Delay = opts.Delay
	default:
		out.Disposition = queue.NackDispositionFailed
	}
	return out
}

// DequeuerAdapter feeds RetryPolicy with the attempt count the queue reports,
// falling back to counting deliveries per idempotency key.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
	mu       sync.Mutex
	attempts map[string]int
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy, attempts: map[string]int{}}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, nil
	}
	key := ""
	if msg := delivery.Message(); msg != nil {
		key = msg.JobID + "|" + msg.IdempotencyKey
	}
	a.mu.Lock()
	a.attempts[key]++
	attempt := a.attempts[key]
	a.mu.Unlock()
	if counted, ok := delivery.(attemptsReader); ok && counted.Attempts() > 0 {
		attempt = counted.Attempts()
	}
	return NewDeliveryAdapter(delivery, a.policy, attempt), nil
}

type attemptsReader interface {
	Attempts() int
}

const defaultIdleDelay = time.Second

// RunFlushWorker processes analytics flush jobs until ctx is done, polling
// every idle delay while the queue is empty.
func RunFlushWorker(ctx context.Context, dequeuer core.JobDequeuer, svc *analytics.Service, hook core.JobWorkerHook) error {
	handler := analytics.FlushJobHandler{Service: svc}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		delivery, err := dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if delivery == nil {
			if !waitIdle(ctx, defaultIdleDelay) {
				return nil
			}
			continue
		}
		_ = runFlushJob(ctx, handler, delivery, hook)
	}
}

// DrainFlushJobs runs queued flush jobs until the queue reports no delivery.
// It returns how many jobs ran and the errors of the ones that failed.
func DrainFlushJobs(ctx context.Context, dequeuer core.JobDequeuer, svc *analytics.Service, hook core.JobWorkerHook) (int, error) {
	handler := analytics.FlushJobHandler{Service: svc}
	processed := 0
	var failures []error
	for {
		if err := ctx.Err(); err != nil {
			return processed, errors.Join(append(failures, err)...)
		}
		delivery, err := dequeuer.Dequeue(ctx)
		if err != nil {
			return processed, errors.Join(append(failures, err)...)
		}
		if delivery == nil {
			return processed, errors.Join(failures...)
		}
		processed++
		if err := runFlushJob(ctx, handler, delivery, hook); err != nil {
			failures = append(failures, err)
		}
	}
}

func runFlushJob(ctx context.Context, handler analytics.FlushJobHandler, delivery core.JobDelivery, hook core.JobWorkerHook) error {
	event := core.JobWorkerEvent{Message: delivery.Message(), StartedAt: time.Now()}
	if hook != nil {
		hook.OnStart(ctx, event)
	}
	err := handler.Handle(ctx, delivery)
	event.Duration = time.Since(event.StartedAt)
	event.Err = err
	if hook == nil {
		return err
	}
	if err != nil {
		hook.OnFailure(ctx, event)
	} else {
		hook.OnSuccess(ctx, event)
	}
	return err
}

func waitIdle(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// WorkerHookAdapter exposes a core.JobWorkerHook to go-job workers.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

// LoggingHook logs job lifecycle events through the shell logger.
type LoggingHook struct {
	Logger core.Logger
}

func (h LoggingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "debug", "job started", event)
}

func (h LoggingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "info", "job succeeded", event)
}

func (h LoggingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "error", "job failed", event)
}

func (h LoggingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "warn", "job retrying", event)
}

func (h LoggingHook) log(ctx context.Context, level string, message string, event core.JobWorkerEvent) {
	fields := map[string]any{
		"attempt":     event.Attempt,
		"duration_ms": event.Duration.Milliseconds(),
	}
	if event.Message != nil {
		fields["job_id"] = event.Message.JobID
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	core.Log(ctx, h.Logger, level, message, fields)
}

var (
	_ core.JobEnqueuer   = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery   = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer   = (*DequeuerAdapter)(nil)
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
	_ core.JobWorkerHook = LoggingHook{}
)

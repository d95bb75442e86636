package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-appshell/core"
	"github.com/goliatone/go-appshell/ratelimit"
	"github.com/goliatone/go-appshell/transport"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	MetricEventTotal = "appshell.analytics.event.total"

	trackingLogPath       = "/event"
	defaultFlushBatchSize = 100
	DefaultMaxAttempts    = 5

	throttleBucketTrackingLog = "tracking_log"
	throttleBucketCollector   = "collector"
)

// Service is the default AnalyticsService. Tracking log events go to the LMS
// through the authenticated client; the other calls go to analytics_api_url
// as JSON and are skipped when it is unset. Throttled or failed events wait in
// the outbox until Flush. A destination that answers 429 or exhausts its
// X-RateLimit quota is held back until it recovers.
type Service struct {
	mu          sync.RWMutex
	userID      string
	anonymousID string

	shell     *core.Shell
	fallback  core.Config
	doer      core.RequestDoer
	public    core.RequestDoer
	limiter   *rate.Limiter
	throttle  *ratelimit.AdaptivePolicy
	outbox    Outbox
	attempts  int
	scheduler core.JobEnqueuer
	logger    core.Logger
	metrics   core.MetricsRecorder
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithOutbox(outbox Outbox) Option {
	return func(s *Service) {
		if outbox != nil {
			s.outbox = outbox
		}
	}
}

// WithMaxAttempts caps delivery attempts per event. An event that fails its
// last attempt is dead lettered and no longer flushed.
func WithMaxAttempts(attempts int) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithThrottlePolicy replaces the per-destination backpressure policy. Nil
// disables it.
func WithThrottlePolicy(policy *ratelimit.AdaptivePolicy) Option {
	return func(s *Service) {
		s.throttle = policy
	}
}

// WithJobEnqueuer enables ScheduleFlush.
func WithJobEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(s *Service) {
		s.scheduler = enqueuer
	}
}

// WithRequestDoer pins the client used for delivery instead of resolving the
// authenticated client from the shell.
func WithRequestDoer(doer core.RequestDoer) Option {
	return func(s *Service) {
		s.doer = doer
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newID = next
		}
	}
}

// WithRateLimit overrides analytics_rate_per_second. Zero disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) {
		s.limiter = newLimiter(perSecond, burst)
	}
}

// New is a core.Constructor for the analytics slot.
func New(opts core.ServiceOptions) (core.AnalyticsService, error) {
	return NewService(opts)
}

func Constructor(options ...Option) core.Constructor[core.AnalyticsService] {
	return func(opts core.ServiceOptions) (core.AnalyticsService, error) {
		return NewService(opts, options...)
	}
}

func NewService(opts core.ServiceOptions, options ...Option) (*Service, error) {
	svc := &Service{
		shell:    opts.Shell,
		fallback: opts.Config,
		public:   transport.NewClient(opts.HTTPClient, nil),
		limiter:  newLimiter(opts.Config.AnalyticsRatePerSecond, 0),
		throttle: ratelimit.NewAdaptivePolicy(nil),
		outbox:   NewMemoryOutbox(),
		attempts: DefaultMaxAttempts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	if svc.logger == nil {
		svc.logger = glog.Nop()
	}
	if svc.metrics == nil {
		svc.metrics = core.NopMetricsRecorder{}
	}
	for _, option := range options {
		if option != nil {
			option(svc)
		}
	}
	return svc, nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SendTrackingLogEvent posts a form encoded event to {lms_base_url}/event.
func (s *Service) SendTrackingLogEvent(ctx context.Context, eventName string, properties map[string]any) error {
	if strings.TrimSpace(eventName) == "" {
		return core.BadInputError("analytics: event name is required")
	}
	if strings.TrimSpace(s.config().LMSBaseURL) == "" {
		return core.BadInputError("analytics: lms_base_url is not configured")
	}
	return s.dispatch(ctx, s.newEvent(KindTrackingLog, eventName, "", properties))
}

func (s *Service) SendTrackEvent(ctx context.Context, eventName string, properties map[string]any) error {
	if strings.TrimSpace(eventName) == "" {
		return core.BadInputError("analytics: event name is required")
	}
	return s.dispatch(ctx, s.newEvent(KindTrack, eventName, "", properties))
}

func (s *Service) SendPageEvent(ctx context.Context, category string, name string, properties map[string]any) error {
	return s.dispatch(ctx, s.newEvent(KindPage, name, category, properties))
}

// IdentifyAuthenticatedUser records userID for later events and sends an
// identify call.
func (s *Service) IdentifyAuthenticatedUser(ctx context.Context, userID string, traits map[string]any) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.BadInputError("analytics: user id is required")
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	return s.dispatch(ctx, s.newEvent(KindIdentify, "", "", traits))
}

// IdentifyAnonymousUser assigns a stable anonymous id on first use.
func (s *Service) IdentifyAnonymousUser(ctx context.Context, traits map[string]any) error {
	s.mu.Lock()
	s.userID = ""
	if s.anonymousID == "" {
		s.anonymousID = s.newID()
	}
	s.mu.Unlock()
	return s.dispatch(ctx, s.newEvent(KindIdentifyAnonymous, "", "", traits))
}

// UserID is the id recorded by the last identify call.
func (s *Service) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Service) AnonymousID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anonymousID
}

func (s *Service) Outbox() Outbox {
	return s.outbox
}

// Flush redelivers pending outbox events, waiting on the rate limiter between
// sends. It returns how many were delivered.
func (s *Service) Flush(ctx context.Context) (int, error) {
	return s.FlushBatch(ctx, defaultFlushBatchSize)
}

func (s *Service) FlushBatch(ctx context.Context, batchSize int) (int, error) {
	pending, err := s.outbox.Pending(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	var failures []error
	for _, event := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return delivered, err
		}
		if err := s.deliver(ctx, event); err != nil {
			if _, throttled := ratelimit.IsThrottled(err); throttled {
				failures = append(failures, err)
				break
			}
			failures = append(failures, fmt.Errorf("analytics: event %s: %w", event.ID, err))
			if markErr := s.markFailed(ctx, event, err); markErr != nil {
				failures = append(failures, markErr)
			}
			continue
		}
		if err := s.outbox.MarkDelivered(ctx, event.ID); err != nil {
			failures = append(failures, err)
			continue
		}
		s.record(ctx, event.Kind, "sent")
		delivered++
	}
	return delivered, errors.Join(failures...)
}

func (s *Service) dispatch(ctx context.Context, event Event) error {
	if !s.limiter.Allow() {
		s.record(ctx, event.Kind, "deferred")
		return s.outbox.Enqueue(ctx, event)
	}
	if err := s.deliver(ctx, event); err != nil {
		if _, throttled := ratelimit.IsThrottled(err); throttled {
			s.record(ctx, event.Kind, "deferred")
			return s.outbox.Enqueue(ctx, event)
		}
		core.Log(ctx, s.logger, "warn", "analytics event deferred after failure", map[string]any{
			"event_id":   event.ID,
			"event_kind": string(event.Kind),
			"error":      err.Error(),
		})
		if enqueueErr := s.outbox.Enqueue(ctx, event); enqueueErr != nil {
			return errors.Join(err, enqueueErr)
		}
		if markErr := s.markFailed(ctx, event, err); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	s.record(ctx, event.Kind, "sent")
	return nil
}

// markFailed counts the failed attempt on an outboxed event and dead letters
// it once it has used its last attempt.
func (s *Service) markFailed(ctx context.Context, event Event, cause error) error {
	if event.Attempts+1 < s.attempts {
		s.record(ctx, event.Kind, "failed")
		return s.outbox.MarkFailed(ctx, event.ID, cause)
	}
	s.record(ctx, event.Kind, "dead_lettered")
	core.Log(ctx, s.logger, "error", "analytics event dead lettered", map[string]any{
		"event_id":   event.ID,
		"event_kind": string(event.Kind),
		"attempts":   event.Attempts + 1,
		"error":      cause.Error(),
	})
	return s.outbox.MarkDeadLettered(ctx, event.ID, cause)
}

func (s *Service) deliver(ctx context.Context, event Event) error {
	cfg := s.config()
	var req *core.Request
	bucket := throttleBucketCollector
	if event.Kind == KindTrackingLog {
		bucket = throttleBucketTrackingLog
		built, err := trackingLogRequest(cfg, event)
		if err != nil {
			return err
		}
		req = built
	} else {
		endpoint := strings.TrimSpace(cfg.AnalyticsAPIURL)
		if endpoint == "" {
			return nil
		}
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("analytics: encode event: %w", err)
		}
		req = &core.Request{
			Method:  http.MethodPost,
			URL:     endpoint,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    body,
		}
	}
	key := ratelimit.Key{Origin: originOf(req.URL), Bucket: bucket}
	if err := s.throttle.BeforeCall(ctx, key); err != nil {
		return err
	}
	res, err := s.client().Do(ctx, req)
	if res == nil && err != nil {
		res, _ = transport.ResponseFromError(err)
	}
	if throttleErr := s.throttle.AfterCall(ctx, key, res); throttleErr != nil {
		core.Log(ctx, s.logger, "warn", "analytics throttle state not recorded", map[string]any{
			"origin": key.Origin,
			"error":  throttleErr.Error(),
		})
	}
	return err
}

func originOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Scheme + "://" + parsed.Host
}

func trackingLogRequest(cfg core.Config, event Event) (*core.Request, error) {
	payload, err := json.Marshal(event.Properties)
	if err != nil {
		return nil, fmt.Errorf("analytics: encode tracking log event: %w", err)
	}
	page := cfg.BaseURL
	if value, ok := event.Properties["page"].(string); ok && strings.TrimSpace(value) != "" {
		page = value
	}
	form := url.Values{}
	form.Set("event_type", event.Name)
	form.Set("event", string(payload))
	form.Set("page", page)
	return &core.Request{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(cfg.LMSBaseURL, "/") + trackingLogPath,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
	}, nil
}

// client prefers the pinned doer, then the shell's authenticated client, then
// the public client.
func (s *Service) client() core.RequestDoer {
	if s.doer != nil {
		return s.doer
	}
	if s.shell != nil {
		if doer, err := s.shell.AuthenticatedHTTPClient(); err == nil && doer != nil {
			return doer
		}
	}
	return s.public
}

func (s *Service) newEvent(kind EventKind, name string, category string, properties map[string]any) Event {
	s.mu.RLock()
	userID, anonymousID := s.userID, s.anonymousID
	s.mu.RUnlock()
	return Event{
		ID:          s.newID(),
		Kind:        kind,
		Name:        strings.TrimSpace(name),
		Category:    strings.TrimSpace(category),
		UserID:      userID,
		AnonymousID: anonymousID,
		Properties:  core.CloneFields(properties),
		Timestamp:   s.now().UTC(),
	}
}

func (s *Service) config() core.Config {
	if s.shell != nil {
		if cfg := s.shell.GetConfig(); strings.TrimSpace(cfg.ServiceName) != "" {
			return cfg
		}
	}
	return s.fallback
}

func (s *Service) record(ctx context.Context, kind EventKind, status string) {
	s.metrics.IncCounter(ctx, MetricEventTotal, 1, map[string]string{
		"kind":   string(kind),
		"status": status,
	})
}

var _ core.AnalyticsService = (*Service)(nil)

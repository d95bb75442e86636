package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Shell owns one slot per subsystem. Consumers depend on the Shell delegates
// and never on the concrete implementations behind them.
type Shell struct {
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	httpClient      HTTPDoer
	errorMapper     ErrorMapper
	catalog         *Catalog

	config    *Slot[ConfigService]
	logging   *Slot[LoggingService]
	pubsub    *Slot[PubSubService]
	analytics *Slot[AnalyticsService]
	auth      *Slot[AuthService]
}

func NewShell(opts ...Option) *Shell {
	builder := shellBuilder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(defaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.catalog == nil {
		builder.catalog = NewCatalog()
	}

	return &Shell{
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		httpClient:      builder.httpClient,
		errorMapper:     builder.errorMapper,
		catalog:         builder.catalog,
		config:          NewSlot[ConfigService](KindConfig, ConfigContract),
		logging:         NewSlot[LoggingService](KindLogging, LoggingContract),
		pubsub:          NewSlot[PubSubService](KindPubSub, PubSubContract),
		analytics:       NewSlot[AnalyticsService](KindAnalytics, AnalyticsContract),
		auth:            NewSlot[AuthService](KindAuth, AuthContract),
	}
}

func defaultErrorMapper(err error) error {
	if err == nil {
		return nil
	}
	return MapError(err)
}

func (s *Shell) Logger() Logger {
	if s == nil || s.logger == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Shell) MetricsRecorder() MetricsRecorder {
	if s == nil || s.metricsRecorder == nil {
		return NopMetricsRecorder{}
	}
	return s.metricsRecorder
}

func (s *Shell) HTTPClient() HTTPDoer {
	if s == nil {
		return nil
	}
	return s.httpClient
}

func (s *Shell) Catalog() *Catalog {
	if s == nil {
		return nil
	}
	return s.catalog
}

// ServiceOptions returns constructor options seeded from the shell and the
// current configuration.
func (s *Shell) ServiceOptions() ServiceOptions {
	return s.completeOptions(ServiceOptions{})
}

func (s *Shell) completeOptions(opts ServiceOptions) ServiceOptions {
	if s == nil {
		return opts
	}
	if strings.TrimSpace(opts.Config.ServiceName) == "" {
		if current, ok := s.config.Lookup(); ok {
			opts.Config = current.GetConfig()
		} else {
			opts.Config = DefaultConfig()
		}
	}
	if opts.Logger == nil {
		opts.Logger = s.Logger()
	}
	if opts.Metrics == nil {
		opts.Metrics = s.MetricsRecorder()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = s.httpClient
	}
	if opts.Shell == nil {
		opts.Shell = s
	}
	return opts
}

func configureSlot[T any](ctx context.Context, s *Shell, slot *Slot[T], ctor Constructor[T], opts ServiceOptions) (T, error) {
	startedAt := time.Now()
	service, err := slot.Configure(ctor, s.completeOptions(opts))
	err = s.mapError(err)
	s.observeOperation(ctx, startedAt, "configure", err, map[string]any{
		"service_kind": string(slot.Kind()),
		"service_type": typeName(service, err),
	})
	return service, err
}

func (s *Shell) ConfigureConfig(ctor Constructor[ConfigService], opts ServiceOptions) (ConfigService, error) {
	return configureSlot(context.Background(), s, s.config, ctor, opts)
}

func (s *Shell) ConfigureLogging(ctor Constructor[LoggingService], opts ServiceOptions) (LoggingService, error) {
	return configureSlot(context.Background(), s, s.logging, ctor, opts)
}

func (s *Shell) ConfigurePubSub(ctor Constructor[PubSubService], opts ServiceOptions) (PubSubService, error) {
	return configureSlot(context.Background(), s, s.pubsub, ctor, opts)
}

func (s *Shell) ConfigureAnalytics(ctor Constructor[AnalyticsService], opts ServiceOptions) (AnalyticsService, error) {
	return configureSlot(context.Background(), s, s.analytics, ctor, opts)
}

func (s *Shell) ConfigureAuth(ctor Constructor[AuthService], opts ServiceOptions) (AuthService, error) {
	return configureSlot(context.Background(), s, s.auth, ctor, opts)
}

// ConfigureDynamic installs an implementation known only as any into the slot for
// kind, after a runtime contract check.
func (s *Shell) ConfigureDynamic(kind Kind, candidate any) error {
	if s == nil {
		return fmt.Errorf("core: shell is nil")
	}
	startedAt := time.Now()
	var err error
	switch kind {
	case KindConfig:
		_, err = s.config.ConfigureDynamic(candidate)
	case KindLogging:
		_, err = s.logging.ConfigureDynamic(candidate)
	case KindPubSub:
		_, err = s.pubsub.ConfigureDynamic(candidate)
	case KindAnalytics:
		_, err = s.analytics.ConfigureDynamic(candidate)
	case KindAuth:
		_, err = s.auth.ConfigureDynamic(candidate)
	default:
		err = BadInputError(fmt.Sprintf("core: unknown service kind %q", kind))
	}
	err = s.mapError(err)
	s.observeOperation(context.Background(), startedAt, "configure_dynamic", err, map[string]any{
		"service_kind": string(kind),
		"service_type": typeName(candidate, nil),
	})
	return err
}

func (s *Shell) ConfigService() (ConfigService, error) {
	return s.config.Get()
}

func (s *Shell) LoggingService() (LoggingService, error) {
	return s.logging.Get()
}

func (s *Shell) PubSubService() (PubSubService, error) {
	return s.pubsub.Get()
}

func (s *Shell) AnalyticsService() (AnalyticsService, error) {
	return s.analytics.Get()
}

func (s *Shell) AuthService() (AuthService, error) {
	return s.auth.Get()
}

func (s *Shell) ResetConfigService()    { s.config.Reset() }
func (s *Shell) ResetLoggingService()   { s.logging.Reset() }
func (s *Shell) ResetPubSubService()    { s.pubsub.Reset() }
func (s *Shell) ResetAnalyticsService() { s.analytics.Reset() }
func (s *Shell) ResetAuthService()      { s.auth.Reset() }

// Reset clears every slot.
func (s *Shell) Reset() {
	s.ResetConfigService()
	s.ResetLoggingService()
	s.ResetPubSubService()
	s.ResetAnalyticsService()
	s.ResetAuthService()
}

// GetConfig returns the zero Config when no config service is configured.
func (s *Shell) GetConfig() Config {
	service, ok := s.config.Lookup()
	if !ok {
		return Config{}
	}
	return service.GetConfig()
}

func (s *Shell) SetConfig(cfg Config) error {
	service, err := s.ConfigService()
	if err != nil {
		return err
	}
	return service.SetConfig(cfg)
}

func (s *Shell) MergeConfig(partial map[string]any) error {
	service, err := s.ConfigService()
	if err != nil {
		return err
	}
	return service.MergeConfig(partial)
}

// EnsureConfig returns the keys that are unset in the active configuration.
func (s *Shell) EnsureConfig(keys []string, requester string) ([]string, error) {
	service, err := s.ConfigService()
	if err != nil {
		return nil, err
	}
	if ensurer, ok := service.(ConfigEnsurer); ok {
		return ensurer.EnsureConfig(keys, requester), nil
	}
	missing := MissingConfigKeys(service.GetConfig(), keys)
	for _, key := range missing {
		s.Logger().Warn("config key is not set", "key", key, "requester", requester)
	}
	return missing, nil
}

// MissingConfigKeys lists keys that resolve to nothing or to an empty value.
func MissingConfigKeys(cfg Config, keys []string) []string {
	missing := make([]string, 0)
	for _, key := range keys {
		value, ok := cfg.Lookup(key)
		if !ok || isEmptyValue(value) {
			missing = append(missing, key)
		}
	}
	return missing
}

func (s *Shell) LogInfo(message string, attrs map[string]any) error {
	service, err := s.LoggingService()
	if err != nil {
		return err
	}
	service.LogInfo(message, attrs)
	return nil
}

func (s *Shell) LogError(err error, attrs map[string]any) error {
	service, getErr := s.LoggingService()
	if getErr != nil {
		return getErr
	}
	service.LogError(err, attrs)
	return nil
}

func (s *Shell) Subscribe(topic string, callback Callback) (string, error) {
	service, err := s.PubSubService()
	if err != nil {
		return "", err
	}
	return service.Subscribe(topic, callback), nil
}

func (s *Shell) Unsubscribe(token string) (bool, error) {
	service, err := s.PubSubService()
	if err != nil {
		return false, err
	}
	return service.Unsubscribe(token), nil
}

func (s *Shell) Publish(topic string, data any) (bool, error) {
	service, err := s.PubSubService()
	if err != nil {
		return false, err
	}
	publisher, ok := service.(Publisher)
	if !ok {
		return false, CapabilityUnsupportedError(KindPubSub, "Publish")
	}
	return publisher.Publish(topic, data), nil
}

// PublishIfConfigured publishes when a capable pub/sub service is installed and
// reports whether anything was delivered.
func (s *Shell) PublishIfConfigured(topic string, data any) bool {
	if s == nil {
		return false
	}
	delivered, err := s.Publish(topic, data)
	return err == nil && delivered
}

func (s *Shell) SendTrackingLogEvent(ctx context.Context, eventName string, properties map[string]any) error {
	service, ok := s.analytics.Lookup()
	if !ok {
		return nil
	}
	return service.SendTrackingLogEvent(ctx, eventName, properties)
}

func (s *Shell) SendTrackEvent(ctx context.Context, eventName string, properties map[string]any) error {
	service, ok := s.analytics.Lookup()
	if !ok {
		return nil
	}
	return service.SendTrackEvent(ctx, eventName, properties)
}

func (s *Shell) SendPageEvent(ctx context.Context, category string, name string, properties map[string]any) error {
	service, ok := s.analytics.Lookup()
	if !ok {
		return nil
	}
	return service.SendPageEvent(ctx, category, name, properties)
}

func (s *Shell) IdentifyAuthenticatedUser(ctx context.Context, userID string, traits map[string]any) error {
	service, ok := s.analytics.Lookup()
	if !ok {
		return nil
	}
	return service.IdentifyAuthenticatedUser(ctx, userID, traits)
}

func (s *Shell) IdentifyAnonymousUser(ctx context.Context, traits map[string]any) error {
	service, ok := s.analytics.Lookup()
	if !ok {
		return nil
	}
	return service.IdentifyAnonymousUser(ctx, traits)
}

func (s *Shell) AuthenticatedHTTPClient() (RequestDoer, error) {
	service, err := s.AuthService()
	if err != nil {
		return nil, err
	}
	return service.AuthenticatedHTTPClient(), nil
}

func (s *Shell) GetAuthenticatedUser() (*AuthenticatedUser, error) {
	service, err := s.AuthService()
	if err != nil {
		return nil, err
	}
	return service.GetAuthenticatedUser(), nil
}

func (s *Shell) SetAuthenticatedUser(user *AuthenticatedUser) error {
	service, err := s.AuthService()
	if err != nil {
		return err
	}
	service.SetAuthenticatedUser(user)
	return nil
}

func (s *Shell) mapError(err error) error {
	if err == nil || s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func typeName(value any, err error) string {
	if err != nil || isNilInstance(value) {
		return ""
	}
	return reflect.TypeOf(value).String()
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return reflected.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return reflected.IsNil()
	default:
		return reflected.IsZero()
	}
}

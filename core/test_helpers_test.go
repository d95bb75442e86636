package core

import (
	"context"
	"sync"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: CloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: CloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := CloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: CloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := CloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return CloneFields(l.values), nil
}

type loggedInfo struct {
	message string
	attrs   map[string]any
}

type loggedError struct {
	err   error
	attrs map[string]any
}

// mockLogging records every call it receives.
type mockLogging struct {
	mu     sync.Mutex
	infos  []loggedInfo
	errors []loggedError
}

func (m *mockLogging) LogInfo(message string, attrs map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, loggedInfo{message: message, attrs: CloneFields(attrs)})
}

func (m *mockLogging) LogError(err error, attrs map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, loggedError{err: err, attrs: attrs})
}

// infoOnlyLogging lacks LogError and must be rejected by the contract check.
type infoOnlyLogging struct{}

func (infoOnlyLogging) LogInfo(string, map[string]any) {}

type memoryConfig struct {
	mu  sync.Mutex
	cfg Config
}

func newMemoryConfig(cfg Config) *memoryConfig {
	return &memoryConfig{cfg: cfg}
}

func (m *memoryConfig) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *memoryConfig) SetConfig(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	return nil
}

func (m *memoryConfig) MergeConfig(partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged, err := GoOptionsResolver{}.Merge(m.cfg, partial)
	if err != nil {
		return err
	}
	m.cfg = merged
	return nil
}

type subscribeOnlyBus struct {
	subscriptions map[string]Callback
}

func (b *subscribeOnlyBus) Subscribe(topic string, callback Callback) string {
	if b.subscriptions == nil {
		b.subscriptions = map[string]Callback{}
	}
	token := topic + "#1"
	b.subscriptions[token] = callback
	return token
}

func (b *subscribeOnlyBus) Unsubscribe(token string) bool {
	_, ok := b.subscriptions[token]
	delete(b.subscriptions, token)
	return ok
}

type publishingBus struct {
	subscribeOnlyBus
	published []string
}

func (b *publishingBus) Publish(topic string, data any) bool {
	b.published = append(b.published, topic)
	delivered := false
	for _, callback := range b.subscriptions {
		callback(topic, data)
		delivered = true
	}
	return delivered
}

type recordingAnalytics struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAnalytics) record(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, name)
	return nil
}

func (a *recordingAnalytics) SendTrackingLogEvent(_ context.Context, eventName string, _ map[string]any) error {
	return a.record("tracking:" + eventName)
}

func (a *recordingAnalytics) SendTrackEvent(_ context.Context, eventName string, _ map[string]any) error {
	return a.record("track:" + eventName)
}

func (a *recordingAnalytics) SendPageEvent(_ context.Context, category string, name string, _ map[string]any) error {
	return a.record("page:" + category + ":" + name)
}

func (a *recordingAnalytics) IdentifyAuthenticatedUser(_ context.Context, userID string, _ map[string]any) error {
	return a.record("identify:" + userID)
}

func (a *recordingAnalytics) IdentifyAnonymousUser(context.Context, map[string]any) error {
	return a.record("identify:anonymous")
}

type stubAuth struct {
	user *AuthenticatedUser
}

func (a *stubAuth) AuthenticatedHTTPClient() RequestDoer { return nil }

func (a *stubAuth) GetAuthenticatedUser() *AuthenticatedUser { return a.user }

func (a *stubAuth) SetAuthenticatedUser(user *AuthenticatedUser) { a.user = user }

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ConfigService owns the application configuration document.
type ConfigService interface {
	GetConfig() Config
	SetConfig(cfg Config) error
	MergeConfig(partial map[string]any) error
}

// ConfigEnsurer is the optional capability behind Shell.EnsureConfig.
type ConfigEnsurer interface {
	EnsureConfig(keys []string, requester string) []string
}

type LoggingService interface {
	LogInfo(message string, attrs map[string]any)
	LogError(err error, attrs map[string]any)
}

type Callback func(topic string, data any)

type PubSubService interface {
	Subscribe(topic string, callback Callback) string
	Unsubscribe(token string) bool
}

// Publisher is optional for pub/sub implementations; subscribe-only buses are valid.
type Publisher interface {
	Publish(topic string, data any) bool
}

type AnalyticsService interface {
	SendTrackingLogEvent(ctx context.Context, eventName string, properties map[string]any) error
	SendTrackEvent(ctx context.Context, eventName string, properties map[string]any) error
	SendPageEvent(ctx context.Context, category string, name string, properties map[string]any) error
	IdentifyAuthenticatedUser(ctx context.Context, userID string, traits map[string]any) error
	IdentifyAnonymousUser(ctx context.Context, traits map[string]any) error
}

type AuthenticatedUser struct {
	UserID        string   `json:"user_id" yaml:"user_id"`
	Username      string   `json:"username" yaml:"username"`
	Email         string   `json:"email,omitempty" yaml:"email,omitempty"`
	Roles         []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	Administrator bool     `json:"administrator" yaml:"administrator"`
}

// RequestDoer is the authenticated client surface handed out by an AuthService.
type RequestDoer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

type AuthService interface {
	AuthenticatedHTTPClient() RequestDoer
	GetAuthenticatedUser() *AuthenticatedUser
	SetAuthenticatedUser(user *AuthenticatedUser)
}

type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    []byte            `json:"-"`
	// IsPublic marks requests that must not carry authentication tokens.
	IsPublic bool           `json:"is_public,omitempty"`
	Timeout  time.Duration  `json:"timeout,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Headers = cloneStrings(r.Headers)
	cloned.Query = cloneStrings(r.Query)
	cloned.Metadata = CloneFields(r.Metadata)
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return &cloned
}

func (r *Request) SetHeader(key string, value string) {
	if r == nil {
		return
	}
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[key] = value
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// ServiceOptions is handed to every service constructor configured on a Shell.
type ServiceOptions struct {
	Config     Config
	Logger     Logger
	Metrics    MetricsRecorder
	HTTPClient HTTPDoer
	// Shell gives constructors access to sibling services through delegates.
	Shell *Shell
}

func cloneStrings(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

package config

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Publisher is the slice of the shell the config service publishes through.
type Publisher interface {
	PublishIfConfigured(topic string, data any) bool
}

// Change is the CONFIG_CHANGED payload.
type Change struct {
	Previous core.Config
	Current  core.Config
	Keys     []string
}

// Service is the default ConfigService. Writes are validated before they
// replace the active document and announce CONFIG_CHANGED.
type Service struct {
	mu        sync.RWMutex
	current   core.Config
	resolver  core.GoOptionsResolver
	publisher Publisher
	logger    core.Logger
}

type Option func(*Service)

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(initial core.Config, options ...Option) (*Service, error) {
	if err := initial.Validate(); err != nil {
		return nil, invalidConfig(err)
	}
	svc := &Service{current: cloneConfig(initial), logger: glog.Nop()}
	for _, option := range options {
		if option != nil {
			option(svc)
		}
	}
	return svc, nil
}

// New is a core.Constructor for the config slot. It starts from opts.Config
// and publishes through opts.Shell.
func New(opts core.ServiceOptions) (core.ConfigService, error) {
	options := []Option{WithLogger(opts.Logger)}
	if opts.Shell != nil {
		options = append(options, WithPublisher(opts.Shell))
	}
	return NewService(opts.Config, options...)
}

// Constructor loads the initial document through provider before building the
// service.
func Constructor(ctx context.Context, provider core.ConfigProvider, runtime core.Config) core.Constructor[core.ConfigService] {
	return func(opts core.ServiceOptions) (core.ConfigService, error) {
		loaded, err := core.LoadConfig(ctx, provider, core.GoOptionsResolver{}, runtime)
		if err != nil {
			return nil, invalidConfig(err)
		}
		opts.Config = loaded
		return New(opts)
	}
}

func (s *Service) GetConfig() core.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfig(s.current)
}

func (s *Service) SetConfig(cfg core.Config) error {
	if err := cfg.Validate(); err != nil {
		return invalidConfig(err)
	}
	s.mu.Lock()
	previous := s.current
	s.current = cloneConfig(cfg)
	s.mu.Unlock()
	s.announce(previous, cfg, changedKeys(previous, cfg))
	return nil
}

// MergeConfig overlays partial on the active document. Nested maps merge and
// everything else replaces.
func (s *Service) MergeConfig(partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	s.mu.Lock()
	previous := s.current
	merged, err := s.resolver.Merge(previous, normalizeKeys(partial))
	if err != nil {
		s.mu.Unlock()
		return invalidConfig(err)
	}
	s.current = cloneConfig(merged)
	s.mu.Unlock()
	s.announce(previous, merged, changedKeys(previous, merged))
	return nil
}

// EnsureConfig warns once per unset key and returns the missing keys.
func (s *Service) EnsureConfig(keys []string, requester string) []string {
	missing := core.MissingConfigKeys(s.GetConfig(), keys)
	for _, key := range missing {
		core.Log(context.Background(), s.logger, "warn", "config key is not set", map[string]any{
			"key":       key,
			"requester": requester,
		})
	}
	return missing
}

func (s *Service) announce(previous core.Config, current core.Config, keys []string) {
	if s.publisher == nil || len(keys) == 0 {
		return
	}
	s.publisher.PublishIfConfigured(core.TopicConfigChanged, Change{
		Previous: cloneConfig(previous),
		Current:  cloneConfig(current),
		Keys:     keys,
	})
}

func changedKeys(previous core.Config, current core.Config) []string {
	before := core.ConfigToMap(previous, true)
	after := core.ConfigToMap(current, true)
	keys := make([]string, 0)
	for key, value := range after {
		if !reflect.DeepEqual(before[key], value) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func invalidConfig(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "config: invalid configuration").
		WithTextCode(core.ShellErrorBadInput)
}

var knownKeys = core.ConfigToMap(core.DefaultConfig(), true)

// normalizeKeys lower-cases top level keys so runtime documents using
// UPPER_SNAKE names merge onto the snake_case config. Unknown keys land in
// custom.
func normalizeKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	custom := map[string]any{}
	for key, value := range raw {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if normalized == "" {
			continue
		}
		if _, ok := knownKeys[normalized]; ok {
			out[normalized] = value
			continue
		}
		custom[normalized] = value
	}
	if len(custom) > 0 {
		if existing, ok := out["custom"].(map[string]any); ok {
			for key, value := range existing {
				if _, set := custom[key]; !set {
					custom[key] = value
				}
			}
		}
		out["custom"] = custom
	}
	return out
}

func cloneConfig(cfg core.Config) core.Config {
	cloned := cfg
	cloned.SupportedLocales = append([]string(nil), cfg.SupportedLocales...)
	cloned.Custom = core.CloneFields(cfg.Custom)
	return cloned
}

var (
	_ core.ConfigService = (*Service)(nil)
	_ core.ConfigEnsurer = (*Service)(nil)
)

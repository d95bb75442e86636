package core

import (
	"context"
	"fmt"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type shellBuilder struct {
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	httpClient      HTTPDoer
	errorMapper     ErrorMapper
	catalog         *Catalog
}

type Option func(*shellBuilder)

func WithLogger(logger Logger) Option {
	return func(b *shellBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *shellBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *shellBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(b *shellBuilder) {
		b.httpClient = client
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *shellBuilder) {
		b.errorMapper = mapper
	}
}

func WithCatalog(catalog *Catalog) Option {
	return func(b *shellBuilder) {
		b.catalog = catalog
	}
}

// LoadConfig runs provider then resolver: defaults < loaded < runtime.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return CloneFields(l.Values), nil
}

// StaticRawConfigLoader serves a fixed raw map, mostly for tests and embedding.
func StaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return BuildConfig(raw, defaults)
}

// BuildConfig decodes raw over defaults and validates the result.
func BuildConfig(raw map[string]any, defaults Config) (Config, error) {
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges config layers with go-options. Later layers win;
// nested maps are merged key by key while scalars and slices are replaced.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), ConfigToMap(defaults, true), opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), ConfigToMap(loaded, false), opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), ConfigToMap(runtime, false), opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: config layers: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: merge config layers: %w", err)
	}
	return BuildConfig(merged.Value, defaults)
}

// Merge overlays a partial raw map on top of base.
func (GoOptionsResolver) Merge(base Config, partial map[string]any) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("current", 0), ConfigToMap(base, true), opts.WithSnapshotID[map[string]any]("current")),
		opts.NewLayer(opts.NewScope("merge", 10), CloneFields(partial), opts.WithSnapshotID[map[string]any]("merge")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: config layers: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: merge config layers: %w", err)
	}
	return BuildConfig(merged.Value, base)
}

var _ OptionsResolver = GoOptionsResolver{}

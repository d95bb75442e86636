package appshell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-appshell/analytics"
	"github.com/goliatone/go-appshell/auth"
	"github.com/goliatone/go-appshell/config"
	"github.com/goliatone/go-appshell/core"
	"github.com/goliatone/go-appshell/i18n"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Phase string

const (
	PhasePubSub    Phase = "pubsub"
	PhaseConfig    Phase = "config"
	PhaseLogging   Phase = "logging"
	PhaseAuth      Phase = "auth"
	PhaseAnalytics Phase = "analytics"
	PhaseI18n      Phase = "i18n"
	PhaseReady     Phase = "ready"
)

const (
	MetricInitPhaseTotal      = "appshell.init.phase.total"
	MetricInitPhaseDurationMS = "appshell.init.phase.duration_ms"
)

var phaseOrder = []Phase{
	PhasePubSub,
	PhaseConfig,
	PhaseLogging,
	PhaseAuth,
	PhaseAnalytics,
	PhaseI18n,
	PhaseReady,
}

var phaseTopics = map[Phase]string{
	PhasePubSub:    core.TopicAppPubSubInitialized,
	PhaseConfig:    core.TopicAppConfigInitialized,
	PhaseLogging:   core.TopicAppLoggingInitialized,
	PhaseAuth:      core.TopicAppAuthInitialized,
	PhaseAnalytics: core.TopicAppAnalyticsInitialized,
	PhaseI18n:      core.TopicAppI18nInitialized,
	PhaseReady:     core.TopicAppReady,
}

// Phases returns the startup phases in execution order.
func Phases() []Phase {
	return append([]Phase(nil), phaseOrder...)
}

// Topic is the lifecycle topic published once phase completes.
func (p Phase) Topic() string {
	return phaseTopics[p]
}

// PhaseFunc runs one startup phase. A handler registered in InitOptions.Handlers
// replaces the built-in behavior for that phase.
type PhaseFunc func(ctx context.Context, app *App) error

type InitOptions struct {
	// ConfigLoader supplies the raw config document. Nil starts from defaults.
	ConfigLoader core.RawConfigLoader
	// Overrides win over the loaded document. Zero fields are ignored.
	Overrides core.Config
	// RuntimeCache memoizes the remote runtime config document.
	RuntimeCache repositorycache.CacheService

	AuthOptions      []auth.Option
	AnalyticsOptions []analytics.Option

	// HydrateUser fetches the authenticated user during the auth phase.
	HydrateUser bool
	// RequireUser fails startup when nobody is logged in. It implies HydrateUser.
	RequireUser bool
	RedirectURL string

	Handlers map[Phase]PhaseFunc
	Hooks    *ExtensionHooks
}

// App is the result of Initialize. Concrete services are nil when the slot was
// filled by the caller with another implementation.
type App struct {
	Shell     *core.Shell
	Config    *config.Service
	Auth      *auth.Service
	Analytics *analytics.Service
	I18n      *i18n.Service

	options InitOptions
}

// PhaseEvent is published with every APP_* lifecycle topic.
type PhaseEvent struct {
	Phase Phase
}

// InitError is published on APP_INIT_ERROR.
type InitError struct {
	Phase Phase
	Err   error
}

func (e InitError) Error() string {
	return fmt.Sprintf("appshell: %s phase failed: %v", e.Phase, e.Err)
}

func (e InitError) Unwrap() error {
	return e.Err
}

// Initialize runs the startup phases against shell in order. Slots the caller
// already filled are kept. The first failing phase stops the sequence, is
// published on APP_INIT_ERROR and returned as an InitError; the partially
// initialized App is returned alongside it.
func Initialize(ctx context.Context, shell *core.Shell, opts InitOptions) (*App, error) {
	if shell == nil {
		return nil, core.BadInputError("appshell: shell is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	app := &App{Shell: shell, options: opts}
	if opts.Hooks != nil {
		if err := opts.Hooks.ApplyFactoryPacks(shell.Catalog()); err != nil {
			return app, app.fail(ctx, PhasePubSub, err)
		}
	}

	for _, phase := range phaseOrder {
		handler := defaultPhaseHandlers[phase]
		if custom, ok := opts.Handlers[phase]; ok && custom != nil {
			handler = custom
		}
		start := time.Now()
		err := handler(ctx, app)
		app.observePhase(ctx, phase, start, err)
		if err != nil {
			return app, app.fail(ctx, phase, err)
		}
		shell.PublishIfConfigured(phase.Topic(), PhaseEvent{Phase: phase})
	}
	return app, nil
}

var defaultPhaseHandlers = map[Phase]PhaseFunc{
	PhasePubSub:    initPubSub,
	PhaseConfig:    initConfig,
	PhaseLogging:   initLogging,
	PhaseAuth:      initAuth,
	PhaseAnalytics: initAnalytics,
	PhaseI18n:      initI18n,
	PhaseReady:     func(context.Context, *App) error { return nil },
}

func initPubSub(_ context.Context, app *App) error {
	if _, err := app.Shell.PubSubService(); err == nil {
		return nil
	}
	name := firstNonEmpty(app.options.Overrides.Services.PubSub, PubSubMemory)
	return app.Shell.ConfigureNamed(core.KindPubSub, name, core.ServiceOptions{})
}

func initConfig(ctx context.Context, app *App) error {
	installed, err := app.Shell.ConfigService()
	if err != nil {
		provider := core.NewCfgxConfigProvider(app.options.ConfigLoader)
		installed, err = app.Shell.ConfigureConfig(config.Constructor(ctx, provider, app.options.Overrides), core.ServiceOptions{})
		if err != nil {
			return err
		}
	}
	app.Config, _ = installed.(*config.Service)

	loader := config.NewRuntimeLoader(app.Shell.GetConfig(), app.Shell.HTTPClient(), app.options.RuntimeCache)
	if loader == nil {
		return nil
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		core.Log(ctx, app.Shell.Logger(), "warn", "runtime config unavailable, continuing with loaded config", map[string]any{
			"phase": string(PhaseConfig),
			"url":   loader.URL,
			"error": err.Error(),
		})
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	return app.Shell.MergeConfig(raw)
}

func initLogging(_ context.Context, app *App) error {
	if _, err := app.Shell.LoggingService(); err == nil {
		return nil
	}
	name := firstNonEmpty(app.Shell.GetConfig().Services.Logging, LoggingGlog)
	return app.Shell.ConfigureNamed(core.KindLogging, name, core.ServiceOptions{})
}

func initAuth(ctx context.Context, app *App) error {
	installed, err := app.Shell.AuthService()
	if err != nil {
		installed, err = app.Shell.ConfigureAuth(auth.Constructor(app.options.AuthOptions...), core.ServiceOptions{})
		if err != nil {
			return err
		}
	}
	app.Auth, _ = installed.(*auth.Service)
	if app.Auth == nil {
		return nil
	}
	switch {
	case app.options.RequireUser:
		_, err = app.Auth.EnsureAuthenticatedUser(ctx, app.options.RedirectURL)
	case app.options.HydrateUser:
		_, err = app.Auth.FetchAuthenticatedUser(ctx)
	}
	return err
}

func initAnalytics(ctx context.Context, app *App) error {
	installed, err := app.Shell.AnalyticsService()
	if err != nil {
		name := firstNonEmpty(app.Shell.GetConfig().Services.Analytics, AnalyticsHTTP)
		if name == AnalyticsHTTP {
			installed, err = app.Shell.ConfigureAnalytics(analytics.Constructor(app.options.AnalyticsOptions...), core.ServiceOptions{})
		} else {
			err = app.Shell.ConfigureNamed(core.KindAnalytics, name, core.ServiceOptions{})
		}
		if err != nil {
			return err
		}
	}
	app.Analytics, _ = installed.(*analytics.Service)

	var identifyErr error
	user, _ := app.Shell.GetAuthenticatedUser()
	if user != nil && user.UserID != "" {
		identifyErr = app.Shell.IdentifyAuthenticatedUser(ctx, user.UserID, map[string]any{"username": user.Username})
	} else {
		identifyErr = app.Shell.IdentifyAnonymousUser(ctx, nil)
	}
	if identifyErr != nil {
		_ = app.Shell.LogError(identifyErr, map[string]any{"phase": string(PhaseAnalytics)})
	}
	return nil
}

func initI18n(_ context.Context, app *App) error {
	service, err := i18n.NewService(app.Shell.GetConfig(), app.Shell)
	if err != nil {
		return err
	}
	app.I18n = service
	return nil
}

func (a *App) fail(ctx context.Context, phase Phase, err error) error {
	initErr := InitError{Phase: phase, Err: err}
	a.Shell.PublishIfConfigured(core.TopicAppInitError, initErr)
	attrs := map[string]any{"phase": string(phase)}
	if logErr := a.Shell.LogError(initErr, attrs); logErr != nil {
		attrs["error"] = initErr.Error()
		core.Log(ctx, a.Shell.Logger(), "error", "appshell initialization failed", attrs)
	}
	return initErr
}

func (a *App) observePhase(ctx context.Context, phase Phase, start time.Time, err error) {
	recorder := a.Shell.MetricsRecorder()
	if recorder == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	tags := map[string]string{"phase": string(phase), "status": status}
	recorder.IncCounter(ctx, MetricInitPhaseTotal, 1, tags)
	recorder.ObserveHistogram(ctx, MetricInitPhaseDurationMS, float64(time.Since(start).Milliseconds()), tags)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return strings.ToLower(trimmed)
		}
	}
	return ""
}

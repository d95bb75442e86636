package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-appshell/core"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileLoader reads a YAML document. A missing file yields an empty layer
// unless Required is set.
type FileLoader struct {
	Path     string
	Required bool
}

func (l FileLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return normalizeKeys(raw), nil
}

// envConfig maps APPSHELL_* variables onto config keys. Slices use ';' as
// separator.
type envConfig struct {
	ServiceName                  string   `env:"APPSHELL_SERVICE_NAME"`
	AppID                        string   `env:"APPSHELL_APP_ID"`
	Environment                  string   `env:"APPSHELL_ENVIRONMENT"`
	BaseURL                      string   `env:"APPSHELL_BASE_URL"`
	LMSBaseURL                   string   `env:"APPSHELL_LMS_BASE_URL"`
	LoginURL                     string   `env:"APPSHELL_LOGIN_URL"`
	LogoutURL                    string   `env:"APPSHELL_LOGOUT_URL"`
	RefreshAccessTokenEndpoint   string   `env:"APPSHELL_REFRESH_ACCESS_TOKEN_ENDPOINT"`
	AccessTokenCookieName        string   `env:"APPSHELL_ACCESS_TOKEN_COOKIE_NAME"`
	CSRFTokenAPIPath             string   `env:"APPSHELL_CSRF_TOKEN_API_PATH"`
	CSRFTokenField               string   `env:"APPSHELL_CSRF_TOKEN_FIELD"`
	LanguagePreferenceCookieName string   `env:"APPSHELL_LANGUAGE_PREFERENCE_COOKIE_NAME"`
	MFEConfigAPIURL              string   `env:"APPSHELL_MFE_CONFIG_API_URL"`
	AnalyticsAPIURL              string   `env:"APPSHELL_ANALYTICS_API_URL"`
	AnalyticsRatePerSecond       float64  `env:"APPSHELL_ANALYTICS_RATE_PER_SECOND"`
	IgnoredErrorRegex            string   `env:"APPSHELL_IGNORED_ERROR_REGEX"`
	SupportedLocales             []string `env:"APPSHELL_SUPPORTED_LOCALES"`
	DefaultLocale                string   `env:"APPSHELL_DEFAULT_LOCALE"`
	LoggingService               string   `env:"APPSHELL_SERVICES_LOGGING"`
	PubSubService                string   `env:"APPSHELL_SERVICES_PUBSUB"`
	AnalyticsService             string   `env:"APPSHELL_SERVICES_ANALYTICS"`
}

// EnvLoader reads APPSHELL_* variables after loading the given dotenv files.
// Variables already present in the environment win over dotenv values.
type EnvLoader struct {
	Files []string
}

func (l EnvLoader) LoadRaw(context.Context) (map[string]any, error) {
	files := make([]string, 0, len(l.Files))
	for _, file := range l.Files {
		if _, err := os.Stat(file); err == nil {
			files = append(files, file)
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("config: load dotenv: %w", err)
		}
	}

	var env envConfig
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}
	cfg := core.Config{
		ServiceName:                  env.ServiceName,
		AppID:                        env.AppID,
		Environment:                  env.Environment,
		BaseURL:                      env.BaseURL,
		LMSBaseURL:                   env.LMSBaseURL,
		LoginURL:                     env.LoginURL,
		LogoutURL:                    env.LogoutURL,
		RefreshAccessTokenEndpoint:   env.RefreshAccessTokenEndpoint,
		AccessTokenCookieName:        env.AccessTokenCookieName,
		CSRFTokenAPIPath:             env.CSRFTokenAPIPath,
		CSRFTokenField:               env.CSRFTokenField,
		LanguagePreferenceCookieName: env.LanguagePreferenceCookieName,
		MFEConfigAPIURL:              env.MFEConfigAPIURL,
		AnalyticsAPIURL:              env.AnalyticsAPIURL,
		AnalyticsRatePerSecond:       env.AnalyticsRatePerSecond,
		IgnoredErrorRegex:            env.IgnoredErrorRegex,
		SupportedLocales:             env.SupportedLocales,
		DefaultLocale:                env.DefaultLocale,
		Services: core.ServiceSelection{
			Logging:   env.LoggingService,
			PubSub:    env.PubSubService,
			Analytics: env.AnalyticsService,
		},
	}
	return core.ConfigToMap(cfg, false), nil
}

// ChainLoader merges layers in order; later loaders override earlier ones and
// nested maps merge.
type ChainLoader []core.RawConfigLoader

func (c ChainLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	merged := map[string]any{}
	for _, loader := range c {
		if loader == nil {
			continue
		}
		layer, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeInto(merged, layer)
	}
	return merged, nil
}

func mergeInto(dst map[string]any, src map[string]any) {
	for key, value := range src {
		nested, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[key] = existing
		}
		mergeInto(existing, nested)
	}
}

var (
	_ core.RawConfigLoader = FileLoader{}
	_ core.RawConfigLoader = EnvLoader{}
	_ core.RawConfigLoader = ChainLoader{}
)

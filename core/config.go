package core

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	DefaultCSRFTokenAPIPath       = "/csrf/api/v1/token"
	DefaultCSRFTokenField         = "csrfToken"
	DefaultAccessTokenCookieName  = "edx-jwt-cookie-header-payload"
	DefaultLanguageCookieName     = "openedx-language-preference"
	DefaultRefreshTokenEndpoint   = "/login_refresh"
	defaultServiceName            = "appshell"
	defaultLocale                 = "en"
	defaultAnalyticsRatePerSecond = 20
)

// ServiceSelection names catalog implementations chosen at startup.
type ServiceSelection struct {
	Logging   string `koanf:"logging" mapstructure:"logging" yaml:"logging"`
	PubSub    string `koanf:"pubsub" mapstructure:"pubsub" yaml:"pubsub"`
	Analytics string `koanf:"analytics" mapstructure:"analytics" yaml:"analytics"`
}

type Config struct {
	ServiceName                  string           `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	AppID                        string           `koanf:"app_id" mapstructure:"app_id" yaml:"app_id"`
	Environment                  string           `koanf:"environment" mapstructure:"environment" yaml:"environment"`
	BaseURL                      string           `koanf:"base_url" mapstructure:"base_url" yaml:"base_url"`
	LMSBaseURL                   string           `koanf:"lms_base_url" mapstructure:"lms_base_url" yaml:"lms_base_url"`
	LoginURL                     string           `koanf:"login_url" mapstructure:"login_url" yaml:"login_url"`
	LogoutURL                    string           `koanf:"logout_url" mapstructure:"logout_url" yaml:"logout_url"`
	RefreshAccessTokenEndpoint   string           `koanf:"refresh_access_token_endpoint" mapstructure:"refresh_access_token_endpoint" yaml:"refresh_access_token_endpoint"`
	AccessTokenCookieName        string           `koanf:"access_token_cookie_name" mapstructure:"access_token_cookie_name" yaml:"access_token_cookie_name"`
	CSRFTokenAPIPath             string           `koanf:"csrf_token_api_path" mapstructure:"csrf_token_api_path" yaml:"csrf_token_api_path"`
	CSRFTokenField               string           `koanf:"csrf_token_field" mapstructure:"csrf_token_field" yaml:"csrf_token_field"`
	LanguagePreferenceCookieName string           `koanf:"language_preference_cookie_name" mapstructure:"language_preference_cookie_name" yaml:"language_preference_cookie_name"`
	MFEConfigAPIURL              string           `koanf:"mfe_config_api_url" mapstructure:"mfe_config_api_url" yaml:"mfe_config_api_url"`
	AnalyticsAPIURL              string           `koanf:"analytics_api_url" mapstructure:"analytics_api_url" yaml:"analytics_api_url"`
	AnalyticsRatePerSecond       float64          `koanf:"analytics_rate_per_second" mapstructure:"analytics_rate_per_second" yaml:"analytics_rate_per_second"`
	IgnoredErrorRegex            string           `koanf:"ignored_error_regex" mapstructure:"ignored_error_regex" yaml:"ignored_error_regex"`
	SupportedLocales             []string         `koanf:"supported_locales" mapstructure:"supported_locales" yaml:"supported_locales"`
	DefaultLocale                string           `koanf:"default_locale" mapstructure:"default_locale" yaml:"default_locale"`
	Services                     ServiceSelection `koanf:"services" mapstructure:"services" yaml:"services"`
	Custom                       map[string]any   `koanf:"custom" mapstructure:"custom" yaml:"custom,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:                  defaultServiceName,
		Environment:                  "production",
		BaseURL:                      "http://localhost",
		AccessTokenCookieName:        DefaultAccessTokenCookieName,
		CSRFTokenAPIPath:             DefaultCSRFTokenAPIPath,
		CSRFTokenField:               DefaultCSRFTokenField,
		RefreshAccessTokenEndpoint:   DefaultRefreshTokenEndpoint,
		LanguagePreferenceCookieName: DefaultLanguageCookieName,
		AnalyticsRatePerSecond:       defaultAnalyticsRatePerSecond,
		SupportedLocales:             []string{defaultLocale},
		DefaultLocale:                defaultLocale,
		Services: ServiceSelection{
			Logging:   "glog",
			PubSub:    "memory",
			Analytics: "http",
		},
		Custom: map[string]any{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("core: base_url is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: base_url must be an absolute url: %q", c.BaseURL)
	}
	if path := strings.TrimSpace(c.CSRFTokenAPIPath); path != "" && !strings.HasPrefix(path, "/") {
		return fmt.Errorf("core: csrf_token_api_path must start with '/': %q", path)
	}
	if pattern := strings.TrimSpace(c.IgnoredErrorRegex); pattern != "" {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("core: ignored_error_regex is invalid: %w", err)
		}
	}
	if c.AnalyticsRatePerSecond < 0 {
		return fmt.Errorf("core: analytics_rate_per_second must not be negative")
	}
	return nil
}

// PageOrigin is the scheme://host the application is served from.
func (c Config) PageOrigin() string {
	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Lookup reads a config value by its snake_case key, falling back to Custom.
func (c Config) Lookup(key string) (any, bool) {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return nil, false
	}
	layer := ConfigToMap(c, false)
	if value, ok := layer[key]; ok {
		return value, true
	}
	if value, ok := c.Custom[key]; ok {
		return value, true
	}
	return nil, false
}

// ConfigToMap renders cfg as an options layer. Zero values are skipped unless
// includeZero is set, so loaded and runtime layers only override what they set.
func ConfigToMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	setString("service_name", cfg.ServiceName)
	setString("app_id", cfg.AppID)
	setString("environment", cfg.Environment)
	setString("base_url", cfg.BaseURL)
	setString("lms_base_url", cfg.LMSBaseURL)
	setString("login_url", cfg.LoginURL)
	setString("logout_url", cfg.LogoutURL)
	setString("refresh_access_token_endpoint", cfg.RefreshAccessTokenEndpoint)
	setString("access_token_cookie_name", cfg.AccessTokenCookieName)
	setString("csrf_token_api_path", cfg.CSRFTokenAPIPath)
	setString("csrf_token_field", cfg.CSRFTokenField)
	setString("language_preference_cookie_name", cfg.LanguagePreferenceCookieName)
	setString("mfe_config_api_url", cfg.MFEConfigAPIURL)
	setString("analytics_api_url", cfg.AnalyticsAPIURL)
	setString("ignored_error_regex", cfg.IgnoredErrorRegex)
	setString("default_locale", cfg.DefaultLocale)

	if includeZero || cfg.AnalyticsRatePerSecond != 0 {
		layer["analytics_rate_per_second"] = cfg.AnalyticsRatePerSecond
	}
	if includeZero || len(cfg.SupportedLocales) > 0 {
		layer["supported_locales"] = append([]string(nil), cfg.SupportedLocales...)
	}

	services := map[string]any{}
	for key, value := range map[string]string{
		"logging":   cfg.Services.Logging,
		"pubsub":    cfg.Services.PubSub,
		"analytics": cfg.Services.Analytics,
	} {
		if includeZero || strings.TrimSpace(value) != "" {
			services[key] = value
		}
	}
	if len(services) > 0 {
		layer["services"] = services
	}
	if includeZero || len(cfg.Custom) > 0 {
		layer["custom"] = CloneFields(cfg.Custom)
	}
	return layer
}

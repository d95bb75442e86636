package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-appshell/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/tidwall/gjson"
)

const (
	runtimeCacheKeyPrefix          = "go-appshell::runtime_config::v1"
	maxRuntimeConfigBytes    int64 = 1 << 20
	defaultRuntimeAppIDParam       = "mfe"
)

// RuntimeLoader fetches the runtime config document from mfe_config_api_url.
// When Cache is set, documents are cached per URL.
type RuntimeLoader struct {
	URL    string
	AppID  string
	Client core.HTTPDoer
	Cache  repositorycache.CacheService
}

// NewRuntimeLoader returns nil when cfg has no runtime config URL.
func NewRuntimeLoader(cfg core.Config, client core.HTTPDoer, cache repositorycache.CacheService) *RuntimeLoader {
	if strings.TrimSpace(cfg.MFEConfigAPIURL) == "" {
		return nil
	}
	return &RuntimeLoader{URL: cfg.MFEConfigAPIURL, AppID: cfg.AppID, Client: client, Cache: cache}
}

func (l *RuntimeLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.URL) == "" {
		return map[string]any{}, nil
	}
	endpoint, err := l.endpoint()
	if err != nil {
		return nil, err
	}
	if l.Cache == nil {
		return l.fetch(ctx, endpoint)
	}
	raw, err := repositorycache.GetOrFetch(ctx, l.Cache, RuntimeCacheKey(endpoint), func(ctx context.Context) (map[string]any, error) {
		return l.fetch(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return core.CloneFields(raw), nil
}

// Invalidate drops the cached document so the next load refetches.
func (l *RuntimeLoader) Invalidate(ctx context.Context) error {
	if l == nil || l.Cache == nil {
		return nil
	}
	endpoint, err := l.endpoint()
	if err != nil {
		return err
	}
	return l.Cache.Delete(ctx, RuntimeCacheKey(endpoint))
}

func RuntimeCacheKey(endpoint string) string {
	return runtimeCacheKeyPrefix + "::" + url.PathEscape(endpoint)
}

func (l *RuntimeLoader) endpoint() (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(l.URL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", core.BadInputError(fmt.Sprintf("config: mfe_config_api_url must be absolute: %q", l.URL))
	}
	if appID := strings.TrimSpace(l.AppID); appID != "" {
		query := parsed.Query()
		query.Set(defaultRuntimeAppIDParam, appID)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func (l *RuntimeLoader) fetch(ctx context.Context, endpoint string) (map[string]any, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("config: build runtime config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config: fetch runtime config: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxRuntimeConfigBytes))
	if err != nil {
		return nil, fmt.Errorf("config: read runtime config: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("config: runtime config responded %d", res.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("config: runtime config is not valid json")
	}
	document := gjson.ParseBytes(body)
	if !document.IsObject() {
		return nil, fmt.Errorf("config: runtime config must be a json object")
	}
	raw := map[string]any{}
	document.ForEach(func(key, value gjson.Result) bool {
		raw[key.String()] = value.Value()
		return true
	})
	return normalizeKeys(raw), nil
}

var _ core.RawConfigLoader = (*RuntimeLoader)(nil)

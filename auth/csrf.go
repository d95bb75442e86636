package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/tidwall/gjson"
)

const (
	HeaderCSRFToken    = "X-CSRFToken"
	HeaderUseJWTCookie = "USE-JWT-COOKIE"

	maxTokenResponseBytes int64 = 1 << 20
)

// CSRFFetcher reads a CSRF token from {origin}{Path}.
type CSRFFetcher struct {
	Client core.HTTPDoer
	Path   string
	Field  string
}

func NewCSRFFetcher(client core.HTTPDoer, path string, field string) *CSRFFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(path) == "" {
		path = core.DefaultCSRFTokenAPIPath
	}
	if strings.TrimSpace(field) == "" {
		field = core.DefaultCSRFTokenField
	}
	return &CSRFFetcher{Client: client, Path: path, Field: field}
}

func (f *CSRFFetcher) Fetch(ctx context.Context, origin string) (string, error) {
	endpoint := strings.TrimRight(origin, "/") + f.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "auth: build csrf token request").
			WithTextCode(core.ShellErrorTokenAcquisition)
	}
	req.Header.Set("Accept", "application/json")

	res, err := f.Client.Do(req)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "auth: csrf token request failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ShellErrorTokenAcquisition).
			WithMetadata(map[string]any{"url": endpoint})
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxTokenResponseBytes))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "auth: read csrf token response").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ShellErrorTokenAcquisition)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", goerrors.New(
			fmt.Sprintf("auth: csrf token endpoint responded %d", res.StatusCode),
			goerrors.HTTPStatusToCategory(res.StatusCode),
		).
			WithCode(res.StatusCode).
			WithTextCode(core.ShellErrorTokenAcquisition).
			WithMetadata(map[string]any{"url": endpoint, "status_code": res.StatusCode})
	}

	value := gjson.GetBytes(body, f.Field)
	if !value.Exists() || strings.TrimSpace(value.String()) == "" {
		return "", goerrors.New(
			fmt.Sprintf("auth: csrf token response has no %q field", f.Field),
			goerrors.CategoryExternal,
		).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ShellErrorTokenAcquisition).
			WithMetadata(map[string]any{"url": endpoint})
	}
	return value.String(), nil
}

// NewCSRFTokenCache wires a CSRF fetcher from cfg into a token cache that falls
// back to the configured page origin.
func NewCSRFTokenCache(client core.HTTPDoer, cfg func() core.Config, metrics core.MetricsRecorder) *TokenCache {
	current := cfg()
	fetcher := NewCSRFFetcher(client, current.CSRFTokenAPIPath, current.CSRFTokenField)
	return NewTokenCache(fetcher.Fetch,
		WithCacheName("csrf"),
		WithCacheMetrics(metrics),
		WithFallbackOrigin(func() string { return cfg().PageOrigin() }),
	)
}

package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-appshell/core"
)

// TokenFetcher retrieves a fresh token for origin (scheme://host).
type TokenFetcher func(ctx context.Context, origin string) (string, error)

// tokenCell is either fetching (done open) or cached (done closed, cached set).
type tokenCell struct {
	done   chan struct{}
	token  string
	err    error
	cached bool
}

// TokenCache keeps one token per origin and runs at most one fetch per origin
// at a time. Concurrent callers for an origin join the in-flight fetch.
type TokenCache struct {
	mu             sync.Mutex
	cells          map[string]*tokenCell
	fetcher        TokenFetcher
	fallbackOrigin func() string
	metrics        core.MetricsRecorder
	name           string
	joinOnly       bool
}

type TokenCacheOption func(*TokenCache)

// WithFallbackOrigin supplies the origin used for URLs without scheme or host.
func WithFallbackOrigin(origin func() string) TokenCacheOption {
	return func(c *TokenCache) {
		c.fallbackOrigin = origin
	}
}

func WithCacheMetrics(recorder core.MetricsRecorder) TokenCacheOption {
	return func(c *TokenCache) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithJoinOnly shares in-flight fetches between callers but keeps no result:
// the cell is dropped when the fetch settles, whether or not anyone still waits.
func WithJoinOnly() TokenCacheOption {
	return func(c *TokenCache) {
		c.joinOnly = true
	}
}

func WithCacheName(name string) TokenCacheOption {
	return func(c *TokenCache) {
		c.name = strings.TrimSpace(name)
	}
}

func NewTokenCache(fetcher TokenFetcher, opts ...TokenCacheOption) *TokenCache {
	cache := &TokenCache{
		cells:   map[string]*tokenCell{},
		fetcher: fetcher,
		metrics: core.NopMetricsRecorder{},
		name:    "csrf",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// GetTokenForURL returns the token for the origin of rawURL.
func (c *TokenCache) GetTokenForURL(ctx context.Context, rawURL string) (string, error) {
	origin, err := c.ResolveOrigin(rawURL)
	if err != nil {
		return "", err
	}
	return c.GetToken(ctx, origin)
}

// GetToken returns the cached token for origin, joins an in-flight fetch, or
// starts one. The fetch is detached from ctx; ctx only bounds the wait.
func (c *TokenCache) GetToken(ctx context.Context, origin string) (string, error) {
	if c == nil || c.fetcher == nil {
		return "", fmt.Errorf("auth: token cache has no fetcher")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	cell, ok := c.cells[origin]
	if ok && cell.cached {
		token := cell.token
		c.mu.Unlock()
		return token, nil
	}
	if !ok {
		cell = &tokenCell{done: make(chan struct{})}
		c.cells[origin] = cell
		go c.fetch(context.WithoutCancel(ctx), origin, cell)
	}
	c.mu.Unlock()

	select {
	case <-cell.done:
		if cell.err != nil {
			return "", cell.err
		}
		return cell.token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *TokenCache) fetch(ctx context.Context, origin string, cell *tokenCell) {
	token, err := c.safeFetch(ctx, origin)
	if err == nil && strings.TrimSpace(token) == "" {
		err = fmt.Errorf("auth: empty %s token for %s", c.name, origin)
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	c.metrics.IncCounter(ctx, core.MetricTokenFetchTotal, 1, map[string]string{
		"token":  c.name,
		"origin": origin,
		"status": status,
	})

	c.mu.Lock()
	cell.token = token
	cell.err = err
	if err != nil || c.joinOnly {
		if c.cells[origin] == cell {
			delete(c.cells, origin)
		}
	} else {
		cell.cached = true
	}
	c.mu.Unlock()
	close(cell.done)
}

func (c *TokenCache) safeFetch(ctx context.Context, origin string) (token string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("auth: %s token fetch panicked: %v", c.name, recovered)
		}
	}()
	return c.fetcher(ctx, origin)
}

// Cached returns the cached token for origin without fetching.
func (c *TokenCache) Cached(origin string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.cells[origin]
	if !ok || !cell.cached {
		return "", false
	}
	return cell.token, true
}

// Forget drops a cached token. In-flight fetches are left alone.
func (c *TokenCache) Forget(origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cell, ok := c.cells[origin]; ok && cell.cached {
		delete(c.cells, origin)
	}
}

// Clear drops every cached token.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for origin, cell := range c.cells {
		if cell.cached {
			delete(c.cells, origin)
		}
	}
}

// ResolveOrigin returns scheme://host for rawURL. URLs without a scheme or host
// resolve to the fallback origin.
func (c *TokenCache) ResolveOrigin(rawURL string) (string, error) {
	if origin := OriginOf(rawURL); origin != "" {
		return origin, nil
	}
	if c != nil && c.fallbackOrigin != nil {
		if origin := OriginOf(c.fallbackOrigin()); origin != "" {
			return origin, nil
		}
	}
	return "", core.BadInputError(fmt.Sprintf("auth: cannot resolve origin for %q", rawURL))
}

// OriginOf returns scheme://host or "" when rawURL has neither.
func OriginOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
}

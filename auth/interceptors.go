package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-appshell/core"
	"github.com/goliatone/go-appshell/transport"
	goerrors "github.com/goliatone/go-errors"
)

// TokenSource acquires a token for a request and applies it as a header.
type TokenSource interface {
	Token(ctx context.Context, req *core.Request) (string, error)
	Apply(req *core.Request, token string)
}

// CSRFTokenSource fetches per-origin CSRF tokens and sets X-CSRFToken.
type CSRFTokenSource struct {
	Cache *TokenCache
}

func (s CSRFTokenSource) Token(ctx context.Context, req *core.Request) (string, error) {
	return s.Cache.GetTokenForURL(ctx, req.URL)
}

func (CSRFTokenSource) Apply(req *core.Request, token string) {
	req.SetHeader(HeaderCSRFToken, token)
}

// JWTCookieSource makes sure the JWT cookie is fresh and asks the server to
// read it from the cookie.
type JWTCookieSource struct {
	Source *JWTSource
}

func (s JWTCookieSource) Token(ctx context.Context, _ *core.Request) (string, error) {
	return s.Source.Token(ctx)
}

func (JWTCookieSource) Apply(req *core.Request, _ string) {
	req.SetHeader(HeaderUseJWTCookie, "true")
}

// SkipFunc reports whether a request should bypass token acquisition.
type SkipFunc func(req *core.Request) bool

// SkipSafeMethods skips methods that never carry CSRF protection.
func SkipSafeMethods(req *core.Request) bool {
	switch strings.ToUpper(strings.TrimSpace(req.Method)) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return false
	default:
		return true
	}
}

// SkipPublic skips requests marked IsPublic.
func SkipPublic(req *core.Request) bool {
	return req.IsPublic
}

// AnySkip skips when any predicate does.
func AnySkip(predicates ...SkipFunc) SkipFunc {
	return func(req *core.Request) bool {
		for _, predicate := range predicates {
			if predicate != nil && predicate(req) {
				return true
			}
		}
		return false
	}
}

// NewTokenProviderInterceptor acquires a token from source unless skip says
// otherwise. On failure the returned error keeps the request, see
// transport.RequestFromError.
func NewTokenProviderInterceptor(source TokenSource, skip SkipFunc) transport.RequestInterceptor {
	return func(ctx context.Context, req *core.Request) (*core.Request, error) {
		if req == nil || (skip != nil && skip(req)) {
			return req, nil
		}
		token, err := source.Token(ctx, req)
		if err != nil {
			return req, TokenAcquisitionError(err, req)
		}
		source.Apply(req, token)
		return req, nil
	}
}

// TokenAcquisitionError wraps a token failure with SHELL_TOKEN_ACQUISITION and
// the request that could not be sent.
func TokenAcquisitionError(err error, req *core.Request) error {
	if err == nil {
		return nil
	}
	wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, "auth: token acquisition failed").
		WithTextCode(core.ShellErrorTokenAcquisition).
		WithMetadata(transport.RequestMetadata(req))
	if wrapped.Code == 0 {
		wrapped.Code = http.StatusBadGateway
	}
	return wrapped
}

// InfoLogger is the logging surface the normalization interceptor needs.
// *core.Shell satisfies it.
type InfoLogger interface {
	LogInfo(message string, attrs map[string]any) error
}

// NewErrorNormalizationInterceptor normalizes every transport failure. 401 and
// 403 responses are reported once through logger.LogInfo.
func NewErrorNormalizationInterceptor(logger InfoLogger) transport.ErrorInterceptor {
	return func(_ context.Context, err error) error {
		normalized := transport.NormalizeError(err)
		if normalized == nil {
			return err
		}
		status := transport.StatusFromError(normalized)
		if logger != nil && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
			_ = logger.LogInfo(normalized.Message, transport.Attributes(normalized))
		}
		return normalized
	}
}
